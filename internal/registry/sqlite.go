package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"hearth/internal/daemoncontext"
	"hearth/internal/fileutil"
	"hearth/internal/logging"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS daemons (
    address TEXT PRIMARY KEY,
    uid TEXT NOT NULL,
    context_json TEXT NOT NULL,
    state TEXT NOT NULL,
    last_seen TEXT NOT NULL
)`

// SQLiteRegistry stores one row per daemon. Each mutation is a single
// statement, so readers on other connections never observe a partial entry.
type SQLiteRegistry struct {
	db     *sql.DB
	path   string
	lock   *locker
	logger *slog.Logger
}

// OpenSQLite opens or creates the registry database at path. A file that is
// not a readable database is moved aside and replaced with an empty one.
func OpenSQLite(path string, lockRetry time.Duration, logger *slog.Logger) (*SQLiteRegistry, error) {
	if path == "" {
		return nil, errors.New("registry path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), fileutil.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	reg := &SQLiteRegistry{
		path:   path,
		lock:   newLocker(path, lockRetry),
		logger: logging.NewComponentLogger(logger, "registry"),
	}

	// Schema creation races with other processes opening the same file.
	err := reg.lock.withLock(context.Background(), func() error {
		db, err := openSQLiteDB(path)
		if err != nil && isCorrupt(err) {
			reg.warnUnavailable(err)
			moved, moveErr := moveAside(path)
			if moveErr != nil {
				return fmt.Errorf("move corrupt registry aside: %w", moveErr)
			}
			reg.logger.Info("corrupt registry database replaced",
				logging.String(logging.FieldEventType, "registry_recreated"),
				logging.String("moved_to", moved))
			db, err = openSQLiteDB(path)
		}
		if err != nil {
			return err
		}
		reg.db = db
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func openSQLiteDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite registry: %w", err)
	}
	// One connection keeps per-connection pragmas such as busy_timeout in effect.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create registry schema: %w", err)
	}
	return db, nil
}

// isCorrupt reports whether err means the file holds no usable database.
func isCorrupt(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return true
	default:
		return false
	}
}

// moveAside renames the database and its WAL files to a timestamped name and
// returns the new database path.
func moveAside(path string) (string, error) {
	target := fmt.Sprintf("%s.corrupt-%d", path, time.Now().UnixNano())
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, target+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return target, err
		}
	}
	return target, nil
}

// Path returns the database file location.
func (r *SQLiteRegistry) Path() string {
	return r.path
}

// Close closes the database handle.
func (r *SQLiteRegistry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// List returns every row. Query or decode failures degrade to an empty or
// partial snapshot.
func (r *SQLiteRegistry) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT address, context_json, state, last_seen FROM daemons ORDER BY address`)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.warnUnavailable(fmt.Errorf("%w: query: %w", ErrUnavailable, err))
		return nil, nil
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			address, contextJSON, state, lastSeen string
		)
		if err := rows.Scan(&address, &contextJSON, &state, &lastSeen); err != nil {
			r.warnUnavailable(fmt.Errorf("%w: scan: %w", ErrUnavailable, err))
			continue
		}
		entry, err := decodeRow(address, contextJSON, state, lastSeen)
		if err != nil {
			r.warnUnavailable(fmt.Errorf("%w: row %s: %w", ErrUnavailable, address, err))
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		r.warnUnavailable(fmt.Errorf("%w: iterate: %w", ErrUnavailable, err))
	}
	return entries, nil
}

// Store upserts entry keyed by its address.
func (r *SQLiteRegistry) Store(ctx context.Context, entry Entry) error {
	if err := entry.validate(); err != nil {
		return err
	}
	if entry.LastSeen.IsZero() {
		entry.LastSeen = now()
	}
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("encode daemon context: %w", err)
	}
	return r.lock.withLock(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO daemons (address, uid, context_json, state, last_seen)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(address) DO UPDATE SET
                uid = excluded.uid,
                context_json = excluded.context_json,
                state = excluded.state,
                last_seen = excluded.last_seen`,
			entry.Address,
			entry.Context.UID,
			string(contextJSON),
			string(entry.State),
			entry.LastSeen.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("store registry entry: %w", err)
		}
		return nil
	})
}

// Remove deletes address. Absent addresses are ignored.
func (r *SQLiteRegistry) Remove(ctx context.Context, address string) error {
	return r.lock.withLock(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM daemons WHERE address = ?`, address); err != nil {
			return fmt.Errorf("remove registry entry: %w", err)
		}
		return nil
	})
}

// MarkState transitions address to state.
func (r *SQLiteRegistry) MarkState(ctx context.Context, address string, state State) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	return r.lock.withLock(ctx, func() error {
		res, err := r.db.ExecContext(ctx,
			`UPDATE daemons SET state = ?, last_seen = ? WHERE address = ?`,
			string(state), now().Format(time.RFC3339Nano), address)
		if err != nil {
			return fmt.Errorf("mark registry entry: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark registry entry: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, address)
		}
		return nil
	})
}

func decodeRow(address, contextJSON, state, lastSeen string) (Entry, error) {
	var dctx daemoncontext.Context
	if err := json.Unmarshal([]byte(contextJSON), &dctx); err != nil {
		return Entry{}, fmt.Errorf("decode context: %w", err)
	}
	parsedState, err := ParseState(state)
	if err != nil {
		return Entry{}, err
	}
	seen, err := time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return Entry{}, fmt.Errorf("parse last_seen: %w", err)
	}
	return Entry{Address: address, Context: dctx, State: parsedState, LastSeen: seen}, nil
}

func (r *SQLiteRegistry) warnUnavailable(err error) {
	logging.WarnWithContext(r.logger, "registry database unreadable; treating as empty", "registry_unavailable",
		logging.String("path", r.path),
		logging.Error(err),
		logging.String(logging.FieldImpact, "running daemons may not be reused"),
		logging.String(logging.FieldErrorHint, "running daemons re-register on their next state change"),
	)
}
