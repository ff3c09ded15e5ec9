package preflight

import (
	"context"

	"hearth/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for cfg. executable is the binary
// used to spawn daemons; an empty value skips that check.
func RunAll(ctx context.Context, cfg *config.Config, executable string) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Registry directory", cfg.Paths.RegistryDir),
		CheckDirectoryAccess("Runtime directory", cfg.Paths.RuntimeDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if executable != "" {
		results = append(results, CheckExecutable("Daemon executable", executable))
	}
	results = append(results, CheckRegistry(ctx, cfg))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
