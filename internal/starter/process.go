package starter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"hearth/internal/config"
	"hearth/internal/connector"
	"hearth/internal/daemoncontext"
	"hearth/internal/fileutil"
	"hearth/internal/logging"
	"hearth/internal/preflight"
)

// LaunchLogName is the file in the log directory that receives the output of
// spawned daemons before they open their own log.
const LaunchLogName = "daemon-launch.log"

// ProcessStarter spawns detached daemon processes.
type ProcessStarter struct {
	executable string
	configPath string
	logDir     string
	logger     *slog.Logger
}

// NewProcessStarter returns a starter that runs executable with the daemon
// subcommand. configPath is forwarded with --config when non-empty.
func NewProcessStarter(executable, configPath string, cfg *config.Config, logger *slog.Logger) *ProcessStarter {
	logDir := ""
	if cfg != nil {
		logDir = cfg.Paths.LogDir
	}
	return &ProcessStarter{
		executable: executable,
		configPath: configPath,
		logDir:     logDir,
		logger:     logging.NewComponentLogger(logger, "starter"),
	}
}

// DaemonArgs builds the command line that asks the daemon subcommand to
// serve want.
func DaemonArgs(configPath string, want daemoncontext.Context) []string {
	args := []string{"daemon"}
	if cfg := strings.TrimSpace(configPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if want.WorkDir != "" {
		args = append(args, "--workdir", want.WorkDir)
	}
	if want.Runtime != "" {
		args = append(args, "--runtime", want.Runtime)
	}
	for _, opt := range want.Options {
		args = append(args, "--option", opt)
	}
	return args
}

// Start launches the daemon and releases the process. Any failure to create
// the process wraps connector.ErrSpawnFailure.
func (s *ProcessStarter) Start(ctx context.Context, want daemoncontext.Context) error {
	if err := ctx.Err(); err != nil {
		return spawnFailure("launch cancelled", err)
	}
	if strings.TrimSpace(s.executable) == "" {
		return spawnFailure("resolve executable", fmt.Errorf("executable path is empty"))
	}
	if check := preflight.CheckExecutable("daemon executable", s.executable); !check.Passed {
		return spawnFailure("check executable", fmt.Errorf("%s", check.Detail))
	}

	args := DaemonArgs(s.configPath, want)
	proc := exec.Command(s.executable, args...)
	proc.SysProcAttr = sysProcAttr()
	if want.WorkDir != "" {
		proc.Dir = want.WorkDir
	}

	if s.logDir != "" {
		if err := os.MkdirAll(s.logDir, fileutil.DefaultDirMode); err != nil {
			return spawnFailure("create log directory", err)
		}
		logFile, err := os.OpenFile(filepath.Join(s.logDir, LaunchLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, fileutil.DefaultFileMode)
		if err != nil {
			return spawnFailure("open launch log", err)
		}
		defer logFile.Close()
		proc.Stdout = logFile
		proc.Stderr = logFile
	}

	if err := proc.Start(); err != nil {
		return spawnFailure("launch daemon", err)
	}
	pid := proc.Process.Pid
	if err := proc.Process.Release(); err != nil {
		s.logger.Warn("failed to release daemon process", logging.Int(logging.FieldPID, pid), logging.Error(err))
	}
	s.logger.Info("daemon process launched",
		logging.String(logging.FieldEventType, "daemon_spawned"),
		logging.Int(logging.FieldPID, pid),
		logging.String("executable", s.executable),
		logging.String("work_dir", want.WorkDir))
	return nil
}

func spawnFailure(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", connector.ErrSpawnFailure, step, err)
}
