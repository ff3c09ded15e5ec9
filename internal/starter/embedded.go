package starter

import (
	"context"
	"log/slog"
	"sync"

	"hearth/internal/config"
	"hearth/internal/daemon"
	"hearth/internal/daemoncontext"
	"hearth/internal/logging"
	"hearth/internal/registry"
)

// EmbeddedStarter runs daemons inside the current process.
type EmbeddedStarter struct {
	cfg    *config.Config
	reg    registry.Registry
	logger *slog.Logger

	mu      sync.Mutex
	daemons []*daemon.Daemon
}

// NewEmbeddedStarter returns a starter that registers in-process daemons in reg.
func NewEmbeddedStarter(cfg *config.Config, reg registry.Registry, logger *slog.Logger) *EmbeddedStarter {
	return &EmbeddedStarter{cfg: cfg, reg: reg, logger: logger}
}

// Start builds a daemon context from want and starts a daemon for it.
func (s *EmbeddedStarter) Start(ctx context.Context, want daemoncontext.Context) error {
	dctx, err := daemoncontext.Satisfying(want)
	if err != nil {
		return spawnFailure("build daemon context", err)
	}
	if err := s.cfg.EnsureDirectories(); err != nil {
		return spawnFailure("prepare directories", err)
	}
	d, err := daemon.New(s.cfg, s.reg, dctx, s.logger)
	if err != nil {
		return spawnFailure("create daemon", err)
	}
	if err := d.Start(ctx); err != nil {
		return spawnFailure("start embedded daemon", err)
	}
	s.mu.Lock()
	s.daemons = append(s.daemons, d)
	s.mu.Unlock()
	logging.NewComponentLogger(s.logger, "starter").Info("embedded daemon started",
		logging.String(logging.FieldEventType, "daemon_spawned"),
		logging.String(logging.FieldAddress, d.Address()),
		logging.String(logging.FieldDaemonUID, dctx.UID))
	return nil
}

// Daemons returns the daemons started so far.
func (s *EmbeddedStarter) Daemons() []*daemon.Daemon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*daemon.Daemon(nil), s.daemons...)
}

// Stop stops every embedded daemon.
func (s *EmbeddedStarter) Stop() {
	for _, d := range s.Daemons() {
		d.Stop()
	}
}
