package daemoncontext

import (
	"path/filepath"
	"slices"
	"strings"
)

// CompatibilitySpec decides whether a daemon context satisfies a client's
// required context. Empty Runtime and WorkDir and nil Options are wildcards.
// UID and PID are never compared.
type CompatibilitySpec struct {
	runtime string
	workDir string
	options []string
	anyOpts bool
}

// NewCompatibilitySpec builds the predicate for required.
func NewCompatibilitySpec(required Context) CompatibilitySpec {
	spec := CompatibilitySpec{
		runtime: required.Runtime,
		anyOpts: required.Options == nil,
	}
	if required.WorkDir != "" {
		spec.workDir = resolveWorkDir(required.WorkDir)
	}
	if !spec.anyOpts {
		spec.options = optionSet(required.Options)
	}
	return spec
}

// Matches reports whether candidate satisfies every specified field.
func (s CompatibilitySpec) Matches(candidate Context) bool {
	if s.runtime != "" && s.runtime != candidate.Runtime {
		return false
	}
	if s.workDir != "" && (candidate.WorkDir == "" || s.workDir != resolveWorkDir(candidate.WorkDir)) {
		return false
	}
	if !s.anyOpts && !slices.Equal(s.options, optionSet(candidate.Options)) {
		return false
	}
	return true
}

func (s CompatibilitySpec) String() string {
	opts := "*"
	if !s.anyOpts {
		opts = "[" + strings.Join(s.options, " ") + "]"
	}
	return "CompatibilitySpec{runtime=" + wildcard(s.runtime) + ", workDir=" + wildcard(s.workDir) + ", options=" + opts + "}"
}

// resolveWorkDir makes relative paths absolute against the current directory,
// the same way Builder records them.
func resolveWorkDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

func wildcard(v string) string {
	if v == "" {
		return "*"
	}
	return v
}
