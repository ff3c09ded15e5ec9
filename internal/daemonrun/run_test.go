package daemonrun_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"hearth/internal/daemon"
	"hearth/internal/daemoncontext"
	"hearth/internal/daemonrun"
	"hearth/internal/registry"
	"hearth/internal/testsupport"
)

func TestRunRegistersAndCleansUp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	workDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan *daemon.Daemon, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- daemonrun.Run(ctx, cfg, daemonrun.Options{
			Want:  daemoncontext.Context{WorkDir: workDir, Options: []string{"--opt"}},
			Ready: func(d *daemon.Daemon) { ready <- d },
		})
	}()

	var d *daemon.Daemon
	select {
	case d = <-ready:
	case err := <-errCh:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon never became ready")
	}

	uid := d.Context().UID
	if d.Context().WorkDir != workDir {
		t.Fatalf("expected work dir %s, got %s", workDir, d.Context().WorkDir)
	}
	pidData, err := os.ReadFile(filepath.Join(cfg.Paths.RuntimeDir, "daemon-"+uid+".pid"))
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(pidData)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file %q", pidData)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, daemonrun.LogPointerName)); err != nil {
		t.Fatalf("log pointer missing: %v", err)
	}

	reg := testsupport.MustOpenRegistry(t, cfg)
	entries, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].State != registry.StateIdle || entries[0].Context.UID != uid {
		t.Fatalf("unexpected registry %+v", entries)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	entries, err = reg.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty registry after shutdown, got %+v", entries)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.RuntimeDir, "daemon-"+uid+".pid")); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, stat err %v", err)
	}
}
