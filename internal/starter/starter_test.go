package starter_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"hearth/internal/connector"
	"hearth/internal/daemoncontext"
	"hearth/internal/ipc"
	"hearth/internal/logging"
	"hearth/internal/starter"
	"hearth/internal/testsupport"
)

func TestDaemonArgs(t *testing.T) {
	want := daemoncontext.Context{
		Runtime: "hearth/1.0",
		WorkDir: "/src/app",
		Options: []string{"--a", "--b=1"},
	}
	got := starter.DaemonArgs("/etc/hearth.toml", want)
	expected := []string{"daemon", "--config", "/etc/hearth.toml", "--workdir", "/src/app", "--runtime", "hearth/1.0", "--option", "--a", "--option", "--b=1"}
	if !slices.Equal(got, expected) {
		t.Fatalf("DaemonArgs = %v, want %v", got, expected)
	}

	if got := starter.DaemonArgs("", daemoncontext.Context{}); !slices.Equal(got, []string{"daemon"}) {
		t.Fatalf("wildcard DaemonArgs = %v", got)
	}
}

func TestProcessStarterSpawnFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		executable string
	}{
		{name: "empty", executable: ""},
		{name: "missing", executable: filepath.Join(dir, "missing")},
		{name: "not executable", executable: plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name == "not executable" && os.Geteuid() == 0 {
				t.Skip("root bypasses execute permission checks on some systems")
			}
			s := starter.NewProcessStarter(tt.executable, "", cfg, logging.NewNop())
			err := s.Start(context.Background(), daemoncontext.Context{WorkDir: dir})
			if !errors.Is(err, connector.ErrSpawnFailure) {
				t.Fatalf("expected ErrSpawnFailure, got %v", err)
			}
		})
	}
}

func TestProcessStarterLaunchesDetachedProcess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	workDir := filepath.Join(base, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(base, "out.txt")
	exe := filepath.Join(base, "bin", "hearth")
	testsupport.WriteExecutable(t, exe, `pwd > "`+out+`.tmp"; echo "$@" >> "`+out+`.tmp"; echo launched; mv "`+out+`.tmp" "`+out+`"`)

	s := starter.NewProcessStarter(exe, "/cfg.toml", cfg, logging.NewNop())
	want := daemoncontext.Context{WorkDir: workDir, Options: []string{"--fast"}}
	if err := s.Start(context.Background(), want); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var data []byte
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var err error
		if data, err = os.ReadFile(out); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if data == nil {
		t.Fatal("spawned process never ran")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected output %q", data)
	}
	if resolved, _ := filepath.EvalSymlinks(workDir); lines[0] != workDir && lines[0] != resolved {
		t.Fatalf("expected cwd %s, got %s", workDir, lines[0])
	}
	if lines[1] != "daemon --config /cfg.toml --workdir "+workDir+" --option --fast" {
		t.Fatalf("unexpected args %q", lines[1])
	}

	logData, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, starter.LaunchLogName))
	if err != nil {
		t.Fatalf("read launch log: %v", err)
	}
	if !strings.Contains(string(logData), "launched") {
		t.Fatalf("launch log missing child output: %q", logData)
	}
}

func TestEmbeddedStarterServesConnector(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	embedded := starter.NewEmbeddedStarter(cfg, reg, logging.NewNop())
	t.Cleanup(embedded.Stop)

	c := connector.New(reg, ipc.NewTransport(logging.NewNop()), embedded, connector.OptionsFromConfig(cfg), logging.NewNop())
	required := daemoncontext.Context{WorkDir: t.TempDir(), Options: []string{"--x"}}

	conn, err := c.Connect(context.Background(), required)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.Context.WorkDir != required.WorkDir || !slices.Equal(conn.Context.Options, []string{"--x"}) {
		t.Fatalf("connected to unexpected context %+v", conn.Context)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	again, err := c.Connect(context.Background(), required)
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	defer again.Close()
	if again.Address != conn.Address {
		t.Fatalf("expected reuse of %s, got %s", conn.Address, again.Address)
	}
	if n := len(embedded.Daemons()); n != 1 {
		t.Fatalf("expected one embedded daemon, got %d", n)
	}
}
