package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"hearth/internal/config"
	"hearth/internal/logging"
	"hearth/internal/registry"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckExecutable verifies that path is a regular file the current user may execute.
func CheckExecutable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not executable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (executable)", path)}
}

// CheckRegistry opens the configured registry and reads it once.
func CheckRegistry(ctx context.Context, cfg *config.Config) Result {
	const name = "Registry"

	reg, err := registry.Open(cfg, logging.NewNop())
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: open: %v)", cfg.RegistryPath(), err)}
	}
	defer reg.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	entries, err := reg.List(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: list: %v)", reg.Path(), err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s backend, %d entries)", reg.Path(), cfg.Registry.Backend, len(entries))}
}
