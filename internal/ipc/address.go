package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// Address networks.
const (
	NetworkUnix = "unix"
	NetworkTCP  = "tcp"
)

// ErrInvalidAddress rejects addresses without a known network prefix.
var ErrInvalidAddress = errors.New("invalid daemon address")

// ParseAddress splits `unix:/path` or `tcp:host:port` into network and target.
func ParseAddress(address string) (string, string, error) {
	network, target, ok := strings.Cut(strings.TrimSpace(address), ":")
	if !ok || target == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	switch network {
	case NetworkUnix, NetworkTCP:
		return network, target, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
}

// FormatAddress joins network and target.
func FormatAddress(network, target string) string {
	return network + ":" + target
}

// Listen opens the acceptor for address and returns the resolved address,
// which differs from the input when a TCP port of 0 is requested. Stale unix
// sockets at the same path are removed first.
func Listen(address string) (net.Listener, string, error) {
	network, target, err := ParseAddress(address)
	if err != nil {
		return nil, "", err
	}
	if network == NetworkUnix {
		if err := os.RemoveAll(target); err != nil {
			return nil, "", fmt.Errorf("remove existing socket: %w", err)
		}
	}
	listener, err := net.Listen(network, target)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", address, err)
	}
	resolved := address
	if network == NetworkTCP {
		resolved = FormatAddress(network, listener.Addr().String())
	}
	return listener, resolved, nil
}
