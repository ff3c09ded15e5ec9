package daemoncontext_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hearth/internal/daemoncontext"
)

func TestBuilderDefaultsFromProcess(t *testing.T) {
	ctx, err := daemoncontext.NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ctx.UID == "" {
		t.Fatal("expected generated uid")
	}
	if ctx.PID != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), ctx.PID)
	}
	if !strings.HasPrefix(ctx.Runtime, "hearth/") {
		t.Fatalf("unexpected runtime tag %q", ctx.Runtime)
	}
	wd, _ := os.Getwd()
	if ctx.WorkDir != wd {
		t.Fatalf("expected work dir %q, got %q", wd, ctx.WorkDir)
	}
	if ctx.Options != nil {
		t.Fatalf("expected nil options when unset, got %v", ctx.Options)
	}
}

func TestBuilderOverrides(t *testing.T) {
	dir := t.TempDir()
	ctx, err := daemoncontext.NewBuilder().
		Runtime(" custom ").
		WorkDir(filepath.Join(dir, ".")).
		Options("--a", " ", "--b").
		UID("fixed").
		PID(7).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ctx.Runtime != "custom" || ctx.UID != "fixed" || ctx.PID != 7 {
		t.Fatalf("overrides not applied: %s", ctx)
	}
	if ctx.WorkDir != dir {
		t.Fatalf("expected cleaned work dir %q, got %q", dir, ctx.WorkDir)
	}
	if len(ctx.Options) != 2 || ctx.Options[0] != "--a" || ctx.Options[1] != "--b" {
		t.Fatalf("unexpected options %v", ctx.Options)
	}

	empty, err := daemoncontext.NewBuilder().Options().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if empty.Options == nil || len(empty.Options) != 0 {
		t.Fatalf("expected explicit empty options, got %#v", empty.Options)
	}
}

func TestSatisfyingFillsWildcards(t *testing.T) {
	dctx, err := daemoncontext.Satisfying(daemoncontext.Context{})
	if err != nil {
		t.Fatalf("Satisfying: %v", err)
	}
	if dctx.UID == "" || dctx.Runtime != daemoncontext.CurrentRuntime() || dctx.WorkDir == "" {
		t.Fatalf("expected process defaults, got %+v", dctx)
	}
	if dctx.Options == nil || len(dctx.Options) != 0 {
		t.Fatalf("expected explicit empty options, got %#v", dctx.Options)
	}

	want := daemoncontext.Context{Runtime: "hearth/x", WorkDir: "/srv", Options: []string{"-a"}}
	dctx, err = daemoncontext.Satisfying(want)
	if err != nil {
		t.Fatalf("Satisfying: %v", err)
	}
	if !daemoncontext.NewCompatibilitySpec(want).Matches(dctx) {
		t.Fatalf("%+v does not satisfy %+v", dctx, want)
	}
}
