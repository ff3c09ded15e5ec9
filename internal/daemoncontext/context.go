package daemoncontext

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Version identifies this build in runtime tags.
var Version = "dev"

// Context is the immutable description of a daemon's environment.
type Context struct {
	UID     string   `json:"uid"`
	Runtime string   `json:"runtime"`
	WorkDir string   `json:"work_dir"`
	Options []string `json:"options"`
	PID     int      `json:"pid"`
}

func (c Context) String() string {
	return fmt.Sprintf("DaemonContext{uid=%s, runtime=%s, workDir=%s, options=%v, pid=%d}",
		c.UID, c.Runtime, c.WorkDir, c.Options, c.PID)
}

// CurrentRuntime returns the runtime identity tag of this executable.
func CurrentRuntime() string {
	return fmt.Sprintf("hearth/%s %s %s/%s", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Builder assembles a Context from the current process environment.
type Builder struct {
	runtime string
	workDir string
	options []string
	optSet  bool
	uid     string
	pid     int
}

// NewBuilder seeds a builder with the current runtime, working directory, and pid.
func NewBuilder() *Builder {
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}
	return &Builder{
		runtime: CurrentRuntime(),
		workDir: wd,
		pid:     os.Getpid(),
	}
}

// Runtime overrides the runtime identity tag.
func (b *Builder) Runtime(value string) *Builder {
	b.runtime = strings.TrimSpace(value)
	return b
}

// WorkDir overrides the working directory.
func (b *Builder) WorkDir(value string) *Builder {
	b.workDir = strings.TrimSpace(value)
	return b
}

// Options sets the startup options. Calling Options with no values still
// records an explicit empty option set.
func (b *Builder) Options(values ...string) *Builder {
	b.options = append([]string{}, values...)
	b.optSet = true
	return b
}

// UID overrides the generated daemon identifier.
func (b *Builder) UID(value string) *Builder {
	b.uid = value
	return b
}

// PID overrides the process id.
func (b *Builder) PID(value int) *Builder {
	b.pid = value
	return b
}

// Build returns the Context. A missing UID is generated.
func (b *Builder) Build() (Context, error) {
	ctx := Context{
		UID:     b.uid,
		Runtime: b.runtime,
		PID:     b.pid,
	}
	if ctx.UID == "" {
		ctx.UID = uuid.NewString()
	}
	if b.workDir != "" {
		abs, err := filepath.Abs(b.workDir)
		if err != nil {
			return Context{}, fmt.Errorf("resolve work dir %q: %w", b.workDir, err)
		}
		ctx.WorkDir = abs
	}
	if b.optSet {
		ctx.Options = normalizeOptions(b.options)
	}
	return ctx, nil
}

// Requirement strips the process identity from c so it can describe what a
// client wants rather than a particular daemon.
func (c Context) Requirement() Context {
	return Context{
		Runtime: c.Runtime,
		WorkDir: c.WorkDir,
		Options: c.Options,
	}
}

// Satisfying builds a full daemon context that meets want. Wildcard runtime
// and work dir take the current process values; options are always explicit.
func Satisfying(want Context) (Context, error) {
	b := NewBuilder().Options(want.Options...)
	if want.Runtime != "" {
		b.Runtime(want.Runtime)
	}
	if want.WorkDir != "" {
		b.WorkDir(want.WorkDir)
	}
	return b.Build()
}

func normalizeOptions(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func optionSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
