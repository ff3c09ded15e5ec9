package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"hearth/internal/config"
	"hearth/internal/daemoncontext"
)

// State is the lifecycle state of a registered daemon.
type State string

const (
	StateStarting State = "starting"
	StateIdle     State = "idle"
	StateBusy     State = "busy"
	StateStopped  State = "stopped"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateStarting, StateIdle, StateBusy, StateStopped:
		return true
	default:
		return false
	}
}

// ParseState converts a user or storage supplied value into a State.
func ParseState(value string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, value)
	}
	return s, nil
}

var (
	// ErrEntryNotFound is returned by MarkState for an unknown address.
	ErrEntryNotFound = errors.New("registry entry not found")
	// ErrInvalidState rejects states outside the lifecycle.
	ErrInvalidState = errors.New("invalid daemon state")
	// ErrUnavailable marks storage that could not be read; callers see an empty registry.
	ErrUnavailable = errors.New("registry unavailable")
)

// Entry is one registered daemon.
type Entry struct {
	Address  string                `json:"address"`
	Context  daemoncontext.Context `json:"context"`
	State    State                 `json:"state"`
	LastSeen time.Time             `json:"last_seen"`
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.Address) == "" {
		return errors.New("registry entry requires an address")
	}
	if !e.State.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, e.State)
	}
	return nil
}

// Registry is the shared directory of known daemons.
type Registry interface {
	// List returns a snapshot of all entries without taking the lock.
	List(ctx context.Context) ([]Entry, error)
	// Store upserts entry keyed by address.
	Store(ctx context.Context, entry Entry) error
	// Remove deletes address; removing an absent address is a no-op.
	Remove(ctx context.Context, address string) error
	// MarkState moves address to state and refreshes its LastSeen.
	MarkState(ctx context.Context, address string, state State) error
	// Path is the storage location backing the registry.
	Path() string
	Close() error
}

// Open returns the registry backend selected by cfg.
func Open(cfg *config.Config, logger *slog.Logger) (Registry, error) {
	if cfg == nil {
		return nil, errors.New("registry requires configuration")
	}
	switch cfg.Registry.Backend {
	case config.RegistryBackendSQLite:
		return OpenSQLite(cfg.RegistryPath(), cfg.LockRetryDelay(), logger)
	case config.RegistryBackendFile, "":
		return NewFileRegistry(cfg.RegistryPath(), cfg.LockRetryDelay(), logger)
	default:
		return nil, fmt.Errorf("registry backend %q not supported", cfg.Registry.Backend)
	}
}

// SortByFreshness orders entries by LastSeen, most recent first. Ties fall
// back to address order so results are stable.
func SortByFreshness(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].LastSeen.After(entries[j].LastSeen)
		}
		return entries[i].Address < entries[j].Address
	})
}

func now() time.Time {
	return time.Now().UTC()
}
