package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"hearth/internal/connector"
	"hearth/internal/daemoncontext"
	"hearth/internal/logging"
)

// Transport dials daemons and acquires them for the connector.
type Transport struct {
	logger *slog.Logger
}

// NewTransport returns a connector transport backed by the JSON-RPC client.
func NewTransport(logger *slog.Logger) *Transport {
	return &Transport{logger: logging.NewComponentLogger(logger, "ipc")}
}

// Connect dials address and acquires the daemon. Dial failures that show
// nothing is listening wrap connector.ErrUnreachable; a daemon that is
// already serving another client wraps connector.ErrCandidateBusy.
func (t *Transport) Connect(ctx context.Context, address string, timeout time.Duration) (connector.Channel, error) {
	client, err := Dial(ctx, address, timeout)
	if err != nil {
		if isUnreachable(err) {
			return nil, fmt.Errorf("dial %s: %w: %w", address, connector.ErrUnreachable, err)
		}
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := client.Acquire(callCtx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("acquire %s: %w", address, err)
	}
	if resp.Busy || !resp.Acquired {
		_ = client.Close()
		return nil, fmt.Errorf("acquire %s: %w", address, connector.ErrCandidateBusy)
	}
	t.logger.Debug("daemon acquired",
		logging.String(logging.FieldAddress, address),
		logging.String(logging.FieldDaemonUID, resp.Context.UID))
	return &Session{Client: client, context: resp.Context}, nil
}

// Session is an acquired daemon connection.
type Session struct {
	*Client
	context daemoncontext.Context
}

// DaemonContext returns the context the daemon reported on acquire.
func (s *Session) DaemonContext() daemoncontext.Context {
	return s.context
}

// Close releases the daemon and closes the connection.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultDialTimeout)
	defer cancel()
	_, releaseErr := s.Client.Release(ctx)
	return errors.Join(releaseErr, s.Client.Close())
}

func isUnreachable(err error) bool {
	if errors.Is(err, ErrInvalidAddress) {
		return true
	}
	if errors.Is(err, unix.ECONNREFUSED) || errors.Is(err, unix.ENOENT) || errors.Is(err, os.ErrNotExist) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
