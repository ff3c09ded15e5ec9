package daemon_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"hearth/internal/config"
	"hearth/internal/connector"
	"hearth/internal/daemon"
	"hearth/internal/daemoncontext"
	"hearth/internal/ipc"
	"hearth/internal/logging"
	"hearth/internal/registry"
	"hearth/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config, reg registry.Registry) *daemon.Daemon {
	t.Helper()
	dctx, err := daemoncontext.NewBuilder().WorkDir(t.TempDir()).Options("--quiet").Build()
	if err != nil {
		t.Fatalf("Build context: %v", err)
	}
	d, err := daemon.New(cfg, reg, dctx, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func startDaemon(t *testing.T, d *daemon.Daemon) {
	t.Helper()
	if err := d.Start(context.Background()); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping daemon test: %v", err)
		}
		t.Fatalf("Start: %v", err)
	}
}

func registryState(t *testing.T, reg registry.Registry, address string) (registry.State, bool) {
	t.Helper()
	entries, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, e := range entries {
		if e.Address == address {
			return e.State, true
		}
	}
	return "", false
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	d := newDaemon(t, cfg, reg)
	startDaemon(t, d)

	address := d.Address()
	if !strings.HasPrefix(address, "unix:") {
		t.Fatalf("expected unix address, got %s", address)
	}
	if state, ok := registryState(t, reg, address); !ok || state != registry.StateIdle {
		t.Fatalf("expected idle entry, got %q (present=%t)", state, ok)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}

	if err := d.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := d.Acquire(); !errors.Is(err, daemon.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if state, _ := registryState(t, reg, address); state != registry.StateBusy {
		t.Fatalf("expected busy entry, got %q", state)
	}
	d.Release()
	if status := d.Status(); status.State != registry.StateIdle {
		t.Fatalf("expected idle status, got %s", status.State)
	}

	d.Stop()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after Stop")
	}
	if _, ok := registryState(t, reg, address); ok {
		t.Fatal("stopped daemon should be removed from the registry")
	}
	if err := d.Acquire(); !errors.Is(err, daemon.ErrBusy) {
		t.Fatalf("stopped daemon must refuse Acquire, got %v", err)
	}
}

func TestDaemonServesConnector(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	d := newDaemon(t, cfg, reg)
	startDaemon(t, d)

	c := connector.New(reg, ipc.NewTransport(logging.NewNop()), nil, connector.OptionsFromConfig(cfg), logging.NewNop())
	required := d.Context().Requirement()
	conn, err := c.Connect(context.Background(), required)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.Address != d.Address() || conn.Context.UID != d.Context().UID {
		t.Fatalf("connected to unexpected daemon %s %+v", conn.Address, conn.Context)
	}
	if state, _ := registryState(t, reg, d.Address()); state != registry.StateBusy {
		t.Fatalf("expected busy entry while connected, got %q", state)
	}

	if _, err := c.Find(context.Background(), required); !errors.Is(err, connector.ErrNoCompatibleDaemon) {
		t.Fatalf("busy daemon should not be found, got %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if state, _ := registryState(t, reg, d.Address()); state != registry.StateIdle {
		t.Fatalf("expected idle entry after release, got %q", state)
	}
}

func TestDaemonStopsWhenIdleTooLong(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithIdleTimeout(1))
	reg := testsupport.MustOpenRegistry(t, cfg)
	d := newDaemon(t, cfg, reg)
	startDaemon(t, d)
	address := d.Address()

	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("idle daemon did not stop")
	}
	if _, ok := registryState(t, reg, address); ok {
		t.Fatal("expired daemon should be removed from the registry")
	}
}

func TestDaemonStopViaIPC(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTransport(config.TransportTCP), testsupport.WithBackend(config.RegistryBackendSQLite))
	reg := testsupport.MustOpenRegistry(t, cfg)
	d := newDaemon(t, cfg, reg)
	startDaemon(t, d)
	if !strings.HasPrefix(d.Address(), "tcp:127.0.0.1:") {
		t.Fatalf("expected tcp address, got %s", d.Address())
	}

	client, err := ipc.Dial(context.Background(), d.Address(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != string(registry.StateIdle) || status.Context.UID != d.Context().UID {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, err := client.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after IPC request")
	}
}

func TestDaemonRejectsDuplicateIdentity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	first := newDaemon(t, cfg, reg)
	startDaemon(t, first)

	second, err := daemon.New(cfg, reg, first.Context(), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected duplicate daemon start to fail")
	}
}
