package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"hearth/internal/ipc"
	"hearth/internal/registry"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// ProbeResult describes one liveness probe.
type ProbeResult struct {
	Address   string
	Reachable bool
	// UID and PID are reported by the daemon when reachable.
	UID string
	PID int
	// ProcessAlive reports whether the recorded pid still exists.
	ProcessAlive bool
	Err          error
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	Address          string
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// List returns the registry snapshot, freshest first.
func List(ctx context.Context, reg registry.Registry) ([]registry.Entry, error) {
	entries, err := reg.List(ctx)
	if err != nil {
		return nil, err
	}
	registry.SortByFreshness(entries)
	return entries, nil
}

// Probe pings the daemon at address and checks whether pid is alive.
func Probe(ctx context.Context, address string, pid int, timeout time.Duration) ProbeResult {
	result := ProbeResult{Address: address, PID: pid, ProcessAlive: ProcessAlive(pid)}
	client, err := ipc.Dial(ctx, address, timeout)
	if err != nil {
		result.Err = err
		return result
	}
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := client.Ping(pingCtx)
	if err != nil {
		result.Err = err
		return result
	}
	result.Reachable = true
	result.UID = resp.UID
	if resp.PID > 0 {
		result.PID = resp.PID
		result.ProcessAlive = ProcessAlive(resp.PID)
	}
	return result
}

// ProcessAlive reports whether a process with pid exists. A process owned by
// another user still counts as alive.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Prune removes entries whose daemon does not answer. Starting entries whose
// process is still alive are kept since the daemon may not be listening yet.
func Prune(ctx context.Context, reg registry.Registry, timeout time.Duration) ([]string, error) {
	entries, err := reg.List(ctx)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, entry := range entries {
		probe := Probe(ctx, entry.Address, entry.Context.PID, timeout)
		if probe.Reachable {
			continue
		}
		if entry.State == registry.StateStarting && probe.ProcessAlive {
			continue
		}
		if err := reg.Remove(ctx, entry.Address); err != nil {
			return removed, fmt.Errorf("remove %s: %w", entry.Address, err)
		}
		removed = append(removed, entry.Address)
	}
	return removed, nil
}

// Stop asks the daemon at address to shut down and waits up to grace for it
// to disappear. A daemon that lingers is killed by pid. The registry entry is
// removed either way.
func Stop(ctx context.Context, reg registry.Registry, address string, timeout, grace time.Duration) (StopResult, error) {
	result := StopResult{Address: address}
	pid := 0
	if entry, ok := lookup(ctx, reg, address); ok {
		pid = entry.Context.PID
	}
	result.PID = pid

	client, err := ipc.Dial(ctx, address, timeout)
	if err != nil {
		_ = reg.Remove(ctx, address)
		return result, fmt.Errorf("%w: %s: %w", ErrDaemonNotRunning, address, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	if status, statusErr := client.Status(callCtx); statusErr == nil && status.Context.PID > 0 {
		result.PID = status.Context.PID
	}
	resp, err := client.Stop(callCtx)
	cancel()
	_ = client.Close()
	if err != nil {
		return result, err
	}
	result.StopAcknowledged = resp.Stopping

	if err := WaitForShutdown(ctx, address, grace); err == nil {
		_ = reg.Remove(ctx, address)
		return result, nil
	}

	if err := ForceKill(result.PID); err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	result.ForcedKill = true
	if err := reg.Remove(ctx, address); err != nil {
		return result, err
	}
	return result, nil
}

// StopAll stops every registered daemon. Daemons that were already gone are
// not treated as errors.
func StopAll(ctx context.Context, reg registry.Registry, timeout, grace time.Duration) ([]StopResult, error) {
	entries, err := List(ctx, reg)
	if err != nil {
		return nil, err
	}
	var (
		results []StopResult
		errs    []error
	)
	for _, entry := range entries {
		res, err := Stop(ctx, reg, entry.Address, timeout, grace)
		if err != nil && !errors.Is(err, ErrDaemonNotRunning) {
			errs = append(errs, err)
			continue
		}
		if err == nil {
			results = append(results, res)
		}
	}
	return results, errors.Join(errs...)
}

// WaitForShutdown polls until nothing answers at address or timeout passes.
func WaitForShutdown(ctx context.Context, address string, timeout time.Duration) error {
	dialTimeout := 200 * time.Millisecond
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(ctx, address, dialTimeout)
		if err != nil {
			return nil
		}
		_ = client.Close()
		lastErr = fmt.Errorf("daemon still running")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ForceKill sends SIGKILL to pid.
func ForceKill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("unable to determine daemon pid")
	}
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	return nil
}

func lookup(ctx context.Context, reg registry.Registry, address string) (registry.Entry, bool) {
	entries, err := reg.List(ctx)
	if err != nil {
		return registry.Entry{}, false
	}
	for _, e := range entries {
		if e.Address == address {
			return e, true
		}
	}
	return registry.Entry{}, false
}
