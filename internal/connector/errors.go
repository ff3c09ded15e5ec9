package connector

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by Connect and Find.
var (
	ErrNoCompatibleDaemon = errors.New("no compatible daemon found")
	ErrSpawnFailure       = errors.New("daemon process could not be started")
	ErrStartTimeout       = errors.New("daemon started but never became reachable")
	ErrTransport          = errors.New("daemon transport error")
)

// Transport classifications. Implementations wrap these so the connector can
// tell a dead daemon from a live one that is serving someone else.
var (
	// ErrUnreachable means nothing is accepting connections at the address
	// (refused, missing socket, dial timeout). The entry is stale.
	ErrUnreachable = errors.New("daemon unreachable")
	// ErrCandidateBusy means the daemon answered but another client acquired it first.
	ErrCandidateBusy = errors.New("daemon busy")
)

// FailureKind returns the failure sentinel wrapped by err, or nil.
func FailureKind(err error) error {
	for _, kind := range []error{ErrNoCompatibleDaemon, ErrSpawnFailure, ErrStartTimeout, ErrTransport} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func failure(kind error, detail string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", kind, detail)
	}
	return fmt.Errorf("%w: %s: %w", kind, detail, cause)
}
