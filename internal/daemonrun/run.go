package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"hearth/internal/config"
	"hearth/internal/daemon"
	"hearth/internal/daemoncontext"
	"hearth/internal/fileutil"
	"hearth/internal/logging"
	"hearth/internal/logs"
	"hearth/internal/registry"
)

// LogPointerName is the link in the log directory that follows the most
// recently started daemon log.
const LogPointerName = logs.PointerName

// Options configures daemon process runtime behavior.
type Options struct {
	// Want is the context requested by the spawning client; wildcard fields
	// take this process's values.
	Want        daemoncontext.Context
	LogLevel    string
	Development bool
	// Foreground also logs to stderr.
	Foreground bool
	// Ready, when set, receives the daemon once it is idle.
	Ready func(*daemon.Daemon)
}

// Run starts a daemon and blocks until it stops or the process is signalled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dctx, err := daemoncontext.Satisfying(opts.Want)
	if err != nil {
		return fmt.Errorf("build daemon context: %w", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, logs.FileName(dctx.UID))
	outputs := []string{logPath}
	if opts.Foreground {
		outputs = append([]string{"stderr"}, outputs...)
	}
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if !fileutil.TryReplaceSymlink(filepath.Join(cfg.Paths.LogDir, LogPointerName), logPath) {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link\n", LogPointerName)
	}

	pidPath := filepath.Join(cfg.Paths.RuntimeDir, "daemon-"+dctx.UID+".pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	reg, err := registry.Open(cfg, logger)
	if err != nil {
		logger.Error("open registry", logging.Error(err))
		return err
	}
	defer reg.Close()

	d, err := daemon.New(cfg, reg, dctx, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check runtime and registry directory access"),
			logging.String(logging.FieldImpact, "the spawning client will time out waiting for this daemon"))
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()
	if opts.Ready != nil {
		opts.Ready(d)
	}

	select {
	case <-signalCtx.Done():
		logger.Info("hearth daemon shutting down",
			logging.String(logging.FieldEventType, "daemon_signalled"))
	case <-d.Done():
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return fileutil.WriteFileAtomic(path, []byte(value), fileutil.DefaultFileMode)
}
