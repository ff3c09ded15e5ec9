package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRegistry()
	c.normalizeDaemon()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("HEARTH_REGISTRY_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.RegistryDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.RegistryDir) == "" {
		c.Paths.RegistryDir = defaultRegistryDir
	}
	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		c.Paths.RuntimeDir = defaultRuntimeDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.RegistryDir, err = expandPath(strings.TrimSpace(c.Paths.RegistryDir)); err != nil {
		return fmt.Errorf("paths.registry_dir: %w", err)
	}
	if c.Paths.RuntimeDir, err = expandPath(strings.TrimSpace(c.Paths.RuntimeDir)); err != nil {
		return fmt.Errorf("paths.runtime_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRegistry() {
	c.Registry.Backend = strings.ToLower(strings.TrimSpace(c.Registry.Backend))
	if c.Registry.Backend == "" {
		c.Registry.Backend = defaultRegistryBackend
	}
	if c.Registry.LockRetryMillis <= 0 {
		c.Registry.LockRetryMillis = defaultLockRetryMillis
	}
}

func (c *Config) normalizeDaemon() {
	c.Daemon.Transport = strings.ToLower(strings.TrimSpace(c.Daemon.Transport))
	if c.Daemon.Transport == "" {
		c.Daemon.Transport = defaultDaemonTransport
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
