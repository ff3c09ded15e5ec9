package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"hearth/internal/config"
	"hearth/internal/connector"
	"hearth/internal/logging"
	"hearth/internal/registry"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// forwardedConfigPath is the --config value handed to spawned daemons so
// they read the same settings as the client.
func (c *commandContext) forwardedConfigPath() string {
	if c.configExists {
		return c.configPath
	}
	return ""
}

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg, "")
}

func (c *commandContext) openRegistry() (registry.Registry, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger()
	if err != nil {
		return nil, err
	}
	return registry.Open(cfg, logger)
}

func (c *commandContext) withRegistry(fn func(*config.Config, registry.Registry) error) error {
	reg, err := c.openRegistry()
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()
	return fn(c.config, reg)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// exitCode maps connector failure kinds onto distinct process exit codes.
func exitCode(err error) int {
	switch kind := connector.FailureKind(err); {
	case errors.Is(kind, connector.ErrNoCompatibleDaemon):
		return 3
	case errors.Is(kind, connector.ErrSpawnFailure):
		return 4
	case errors.Is(kind, connector.ErrStartTimeout):
		return 5
	case errors.Is(kind, connector.ErrTransport):
		return 6
	default:
		return 1
	}
}

func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
