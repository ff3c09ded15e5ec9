package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"hearth/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Registry backend identifiers.
const (
	RegistryBackendFile   = "file"
	RegistryBackendSQLite = "sqlite"
)

// Daemon transport identifiers.
const (
	TransportUnix = "unix"
	TransportTCP  = "tcp"
)

// Paths contains directory configuration.
type Paths struct {
	RegistryDir string `toml:"registry_dir"`
	RuntimeDir  string `toml:"runtime_dir"`
	LogDir      string `toml:"log_dir"`
}

// Registry selects and tunes the daemon registry storage.
type Registry struct {
	Backend         string `toml:"backend"`
	LockRetryMillis int    `toml:"lock_retry_millis"`
}

// Connector contains client-side connection timing.
type Connector struct {
	ConnectTimeoutMillis  int `toml:"connect_timeout_millis"`
	StartTimeoutSeconds   int `toml:"start_timeout_seconds"`
	DeadlineSeconds       int `toml:"deadline_seconds"`
	PollIntervalMillis    int `toml:"poll_interval_millis"`
	MaxPollIntervalMillis int `toml:"max_poll_interval_millis"`
	RetryBudget           int `toml:"retry_budget"`
}

// Daemon contains daemon process behaviour.
type Daemon struct {
	Transport          string `toml:"transport"`
	IdleTimeoutSeconds int    `toml:"idle_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for hearth.
//
// Configuration sections by subsystem:
//   - Paths: registry, runtime socket, and log directories
//   - Registry: storage backend and lock polling
//   - Connector: connect/start timeouts, polling backoff, retry budget
//   - Daemon: listener transport and idle expiry
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Registry  Registry  `toml:"registry"`
	Connector Connector `toml:"connector"`
	Daemon    Daemon    `toml:"daemon"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hearth/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("hearth.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the registry, runtime, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RegistryDir, c.Paths.RuntimeDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, fileutil.DefaultDirMode); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RegistryPath returns the storage location for the configured registry backend.
func (c *Config) RegistryPath() string {
	if c.Registry.Backend == RegistryBackendSQLite {
		return filepath.Join(c.Paths.RegistryDir, "registry.db")
	}
	return filepath.Join(c.Paths.RegistryDir, "registry.json")
}

// LockRetryDelay is the interval between registry lock attempts.
func (c *Config) LockRetryDelay() time.Duration {
	return time.Duration(c.Registry.LockRetryMillis) * time.Millisecond
}

// ConnectTimeout bounds a single transport connection attempt.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Connector.ConnectTimeoutMillis) * time.Millisecond
}

// StartTimeout bounds the wait for a freshly spawned daemon to become reachable.
func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.Connector.StartTimeoutSeconds) * time.Second
}

// Deadline bounds a whole connect sequence when the caller supplies none.
func (c *Config) Deadline() time.Duration {
	return time.Duration(c.Connector.DeadlineSeconds) * time.Second
}

// PollInterval is the initial registry poll interval while a daemon starts.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Connector.PollIntervalMillis) * time.Millisecond
}

// MaxPollInterval caps the registry poll backoff.
func (c *Config) MaxPollInterval() time.Duration {
	return time.Duration(c.Connector.MaxPollIntervalMillis) * time.Millisecond
}

// IdleTimeout is how long a daemon may stay idle before it stops itself.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Daemon.IdleTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, fileutil.DefaultDirMode); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), fileutil.DefaultFileMode); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
