package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"hearth/internal/fileutil"
	"hearth/internal/logging"
)

const fileFormatVersion = 1

type fileDocument struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// FileRegistry keeps all entries in one JSON document. Every mutation
// rewrites the document through fileutil.WriteFileAtomic, so a concurrent
// reader sees either the previous or the next document in full.
type FileRegistry struct {
	path   string
	lock   *locker
	logger *slog.Logger
}

// NewFileRegistry returns a registry stored at path, creating its directory.
func NewFileRegistry(path string, lockRetry time.Duration, logger *slog.Logger) (*FileRegistry, error) {
	if path == "" {
		return nil, errors.New("registry path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), fileutil.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}
	return &FileRegistry{
		path:   path,
		lock:   newLocker(path, lockRetry),
		logger: logging.NewComponentLogger(logger, "registry"),
	}, nil
}

// Path returns the JSON document location.
func (r *FileRegistry) Path() string {
	return r.path
}

// Close is a no-op; the registry holds no open handles between calls.
func (r *FileRegistry) Close() error {
	return nil
}

// List returns the committed entries.
func (r *FileRegistry) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.read(), nil
}

// Store upserts entry keyed by its address.
func (r *FileRegistry) Store(ctx context.Context, entry Entry) error {
	if err := entry.validate(); err != nil {
		return err
	}
	if entry.LastSeen.IsZero() {
		entry.LastSeen = now()
	}
	return r.mutate(ctx, func(entries map[string]Entry) (bool, error) {
		entries[entry.Address] = entry
		return true, nil
	})
}

// Remove deletes address. Absent addresses are ignored.
func (r *FileRegistry) Remove(ctx context.Context, address string) error {
	return r.mutate(ctx, func(entries map[string]Entry) (bool, error) {
		if _, ok := entries[address]; !ok {
			return false, nil
		}
		delete(entries, address)
		return true, nil
	})
}

// MarkState transitions address to state.
func (r *FileRegistry) MarkState(ctx context.Context, address string, state State) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	return r.mutate(ctx, func(entries map[string]Entry) (bool, error) {
		entry, ok := entries[address]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrEntryNotFound, address)
		}
		entry.State = state
		entry.LastSeen = now()
		entries[address] = entry
		return true, nil
	})
}

func (r *FileRegistry) mutate(ctx context.Context, fn func(map[string]Entry) (bool, error)) error {
	return r.lock.withLock(ctx, func() error {
		current := r.read()
		entries := make(map[string]Entry, len(current))
		for _, e := range current {
			entries[e.Address] = e
		}
		changed, err := fn(entries)
		if err != nil || !changed {
			return err
		}
		return r.write(entries)
	})
}

func (r *FileRegistry) read() []Entry {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		r.warnUnavailable(fmt.Errorf("%w: read %s: %w", ErrUnavailable, r.path, err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		r.warnUnavailable(fmt.Errorf("%w: decode %s: %w", ErrUnavailable, r.path, err))
		return nil
	}
	entries := make([]Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if e.validate() != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func (r *FileRegistry) write(entries map[string]Entry) error {
	doc := fileDocument{Version: fileFormatVersion, Entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, e)
	}
	sort.Slice(doc.Entries, func(i, j int) bool { return doc.Entries[i].Address < doc.Entries[j].Address })

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := fileutil.WriteFileAtomic(r.path, data, fileutil.DefaultFileMode); err != nil {
		return fmt.Errorf("commit registry: %w", err)
	}
	return nil
}

func (r *FileRegistry) warnUnavailable(err error) {
	logging.WarnWithContext(r.logger, "registry storage unreadable; treating as empty", "registry_unavailable",
		logging.String("path", r.path),
		logging.Error(err),
		logging.String(logging.FieldImpact, "running daemons may not be reused until the registry is rewritten"),
		logging.String(logging.FieldErrorHint, "the next daemon registration rewrites the file; delete it if the problem persists"),
	)
}
