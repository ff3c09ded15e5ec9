package daemoncontext_test

import (
	"os"
	"testing"

	"hearth/internal/daemoncontext"
)

func TestCompatibilitySpecMatrix(t *testing.T) {
	candidate := daemoncontext.Context{
		UID:     "uid-1",
		Runtime: "hearth/1.0 go1.26 linux/amd64",
		WorkDir: "/work/project",
		Options: []string{"--offline", "-Xmx2g"},
		PID:     4242,
	}

	tests := []struct {
		name     string
		required daemoncontext.Context
		want     bool
	}{
		{name: "all wildcards", required: daemoncontext.Context{}, want: true},
		{name: "runtime equal", required: daemoncontext.Context{Runtime: candidate.Runtime}, want: true},
		{name: "runtime differs", required: daemoncontext.Context{Runtime: "hearth/0.9 go1.26 linux/amd64"}, want: false},
		{name: "workdir equal", required: daemoncontext.Context{WorkDir: "/work/project"}, want: true},
		{name: "workdir equal after clean", required: daemoncontext.Context{WorkDir: "/work/./project/"}, want: true},
		{name: "workdir differs", required: daemoncontext.Context{WorkDir: "/work/other"}, want: false},
		{name: "options equal", required: daemoncontext.Context{Options: []string{"--offline", "-Xmx2g"}}, want: true},
		{name: "options reordered", required: daemoncontext.Context{Options: []string{"-Xmx2g", "--offline"}}, want: true},
		{name: "options duplicated", required: daemoncontext.Context{Options: []string{"-Xmx2g", "--offline", "-Xmx2g"}}, want: true},
		{name: "options subset", required: daemoncontext.Context{Options: []string{"--offline"}}, want: false},
		{name: "options superset", required: daemoncontext.Context{Options: []string{"--offline", "-Xmx2g", "--debug"}}, want: false},
		{name: "explicit empty options", required: daemoncontext.Context{Options: []string{}}, want: false},
		{name: "uid and pid ignored", required: daemoncontext.Context{UID: "other", PID: 1}, want: true},
		{
			name: "every field equal",
			required: daemoncontext.Context{
				Runtime: candidate.Runtime,
				WorkDir: candidate.WorkDir,
				Options: candidate.Options,
			},
			want: true,
		},
		{
			name: "one mismatched field among equal ones",
			required: daemoncontext.Context{
				Runtime: candidate.Runtime,
				WorkDir: "/elsewhere",
				Options: candidate.Options,
			},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := daemoncontext.NewCompatibilitySpec(tc.required)
			if got := spec.Matches(candidate); got != tc.want {
				t.Fatalf("Matches(%s) = %v, want %v", spec, got, tc.want)
			}
		})
	}
}

func TestCompatibilitySpecIsReflexive(t *testing.T) {
	contexts := []daemoncontext.Context{
		{},
		{Runtime: "r"},
		{WorkDir: "/a"},
		{Options: []string{}},
		{Runtime: "r", WorkDir: "/a", Options: []string{"x", "y"}},
	}
	for _, ctx := range contexts {
		if !daemoncontext.NewCompatibilitySpec(ctx).Matches(ctx) {
			t.Fatalf("expected %s to match itself", ctx)
		}
		if !daemoncontext.NewCompatibilitySpec(ctx.Requirement()).Matches(ctx) {
			t.Fatalf("expected requirement of %s to match it", ctx)
		}
	}
}

func TestCompatibilitySpecEmptyOptionsMatchesNoOptionDaemon(t *testing.T) {
	spec := daemoncontext.NewCompatibilitySpec(daemoncontext.Context{Options: []string{}})
	if !spec.Matches(daemoncontext.Context{}) {
		t.Fatal("expected explicit empty option set to match daemon started without options")
	}
	if spec.Matches(daemoncontext.Context{Options: []string{"--x"}}) {
		t.Fatal("expected explicit empty option set to reject daemon with options")
	}
}

func TestCompatibilitySpecRequiresCandidateWorkDir(t *testing.T) {
	spec := daemoncontext.NewCompatibilitySpec(daemoncontext.Context{WorkDir: "/a"})
	if spec.Matches(daemoncontext.Context{}) {
		t.Fatal("expected unspecified candidate work dir to fail a specified requirement")
	}
}

func TestCompatibilitySpecResolvesRelativeWorkDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	want := daemoncontext.Context{WorkDir: "."}
	started, err := daemoncontext.Satisfying(want)
	if err != nil {
		t.Fatalf("Satisfying: %v", err)
	}
	if !daemoncontext.NewCompatibilitySpec(want).Matches(started) {
		t.Fatalf("spec for %q should match daemon started for it (%s)", want.WorkDir, started.WorkDir)
	}
	if !daemoncontext.NewCompatibilitySpec(want).Matches(daemoncontext.Context{WorkDir: cwd}) {
		t.Fatalf("relative requirement should match absolute %s", cwd)
	}
	if !daemoncontext.NewCompatibilitySpec(daemoncontext.Context{WorkDir: cwd}).Matches(daemoncontext.Context{WorkDir: "."}) {
		t.Fatal("relative candidate should match absolute requirement")
	}
	if daemoncontext.NewCompatibilitySpec(daemoncontext.Context{WorkDir: "sub"}).Matches(started) {
		t.Fatal("different relative dir should not match")
	}
}
