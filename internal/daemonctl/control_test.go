package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"hearth/internal/config"
	"hearth/internal/daemon"
	"hearth/internal/daemoncontext"
	"hearth/internal/daemonctl"
	"hearth/internal/ipc"
	"hearth/internal/logging"
	"hearth/internal/registry"
	"hearth/internal/testsupport"
)

func startDaemon(t *testing.T, cfg *config.Config, reg registry.Registry) *daemon.Daemon {
	t.Helper()
	dctx, err := daemoncontext.NewBuilder().WorkDir(t.TempDir()).Options().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, err := daemon.New(cfg, reg, dctx, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return d
}

func deadAddress(t *testing.T) string {
	return ipc.FormatAddress(ipc.NetworkUnix, filepath.Join(testsupport.SocketDir(t), "gone.sock"))
}

func addresses(entries []registry.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Address)
	}
	return out
}

func TestProcessAlive(t *testing.T) {
	if !daemonctl.ProcessAlive(os.Getpid()) {
		t.Fatal("current process should be alive")
	}
	if daemonctl.ProcessAlive(0) {
		t.Fatal("pid 0 should never be alive")
	}
}

func TestProbeReachableDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	d := startDaemon(t, cfg, reg)

	probe := daemonctl.Probe(context.Background(), d.Address(), 0, time.Second)
	if !probe.Reachable || probe.UID != d.Context().UID || probe.PID != os.Getpid() || !probe.ProcessAlive {
		t.Fatalf("unexpected probe %+v", probe)
	}

	probe = daemonctl.Probe(context.Background(), deadAddress(t), 0, 200*time.Millisecond)
	if probe.Reachable || probe.Err == nil {
		t.Fatalf("expected unreachable probe, got %+v", probe)
	}
}

func TestPruneRemovesOnlyDeadEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()
	live := startDaemon(t, cfg, reg)

	dead := deadAddress(t)
	booting := deadAddress(t)
	if err := reg.Store(ctx, registry.Entry{Address: dead, Context: daemoncontext.Context{UID: "dead"}, State: registry.StateIdle}); err != nil {
		t.Fatalf("Store dead: %v", err)
	}
	if err := reg.Store(ctx, registry.Entry{Address: booting, Context: daemoncontext.Context{UID: "boot", PID: os.Getpid()}, State: registry.StateStarting}); err != nil {
		t.Fatalf("Store booting: %v", err)
	}

	removed, err := daemonctl.Prune(ctx, reg, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !slices.Equal(removed, []string{dead}) {
		t.Fatalf("expected only %s removed, got %v", dead, removed)
	}
	entries, err := daemonctl.List(ctx, reg)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := addresses(entries)
	if len(got) != 2 || !slices.Contains(got, live.Address()) || !slices.Contains(got, booting) {
		t.Fatalf("unexpected remaining entries %v", got)
	}

	// Pruning again is a no-op for the dead entry.
	removed, err = daemonctl.Prune(ctx, reg, 200*time.Millisecond)
	if err != nil || len(removed) != 0 {
		t.Fatalf("second Prune removed %v err %v", removed, err)
	}
}

func TestStopDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()
	d := startDaemon(t, cfg, reg)

	res, err := daemonctl.Stop(ctx, reg, d.Address(), time.Second, 2*time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !res.StopAcknowledged || res.ForcedKill {
		t.Fatalf("unexpected stop result %+v", res)
	}
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
	entries, _ := reg.List(ctx)
	if len(entries) != 0 {
		t.Fatalf("expected empty registry, got %v", addresses(entries))
	}
}

func TestStopUnreachableDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()
	dead := deadAddress(t)
	if err := reg.Store(ctx, registry.Entry{Address: dead, Context: daemoncontext.Context{UID: "dead"}, State: registry.StateIdle}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	_, err := daemonctl.Stop(ctx, reg, dead, 200*time.Millisecond, time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	entries, _ := reg.List(ctx)
	if len(entries) != 0 {
		t.Fatalf("unreachable entry should be removed, got %v", addresses(entries))
	}
}

func TestStopAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()
	first := startDaemon(t, cfg, reg)
	second := startDaemon(t, cfg, reg)
	if err := reg.Store(ctx, registry.Entry{Address: deadAddress(t), Context: daemoncontext.Context{UID: "dead"}, State: registry.StateIdle}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	results, err := daemonctl.StopAll(ctx, reg, time.Second, 2*time.Second)
	if err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 stopped daemons, got %+v", results)
	}
	for _, d := range []*daemon.Daemon{first, second} {
		select {
		case <-d.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("daemon %s did not stop", d.Address())
		}
	}
	entries, _ := reg.List(ctx)
	if len(entries) != 0 {
		t.Fatalf("expected empty registry, got %v", addresses(entries))
	}
}
