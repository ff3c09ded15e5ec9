package testsupport

import (
	"testing"

	"hearth/internal/config"
	"hearth/internal/logging"
	"hearth/internal/registry"
)

// MustOpenRegistry opens the configured registry for tests and registers cleanup.
func MustOpenRegistry(t testing.TB, cfg *config.Config) registry.Registry {
	t.Helper()

	reg, err := registry.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = reg.Close()
	})
	return reg
}
