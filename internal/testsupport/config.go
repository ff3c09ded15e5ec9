package testsupport

import (
	"path/filepath"
	"testing"

	"hearth/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The runtime directory lives under a short path so unix socket names stay
// within the platform limit.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RegistryDir = filepath.Join(base, "registry")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.RuntimeDir = SocketDir(t)
	cfgVal.Registry.LockRetryMillis = 5
	cfgVal.Connector.ConnectTimeoutMillis = 500
	cfgVal.Connector.StartTimeoutSeconds = 5
	cfgVal.Connector.DeadlineSeconds = 10
	cfgVal.Connector.PollIntervalMillis = 10
	cfgVal.Connector.MaxPollIntervalMillis = 100

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBackend selects the registry backend.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Registry.Backend = backend
	}
}

// WithTransport selects the daemon listener transport.
func WithTransport(transport string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.Transport = transport
	}
}

// WithIdleTimeout overrides the daemon idle timeout in seconds.
func WithIdleTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.IdleTimeoutSeconds = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.RegistryDir)
}
