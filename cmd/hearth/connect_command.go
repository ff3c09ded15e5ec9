package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hearth/internal/connector"
	"hearth/internal/daemoncontext"
	"hearth/internal/ipc"
	"hearth/internal/registry"
	"hearth/internal/starter"
)

const wildcardValue = "*"

type connectFlags struct {
	workDir      string
	runtime      string
	options      []string
	exactOptions bool
	noStart      bool
	embedded     bool
	timeout      time.Duration
	jsonOutput   bool
}

func newConnectCommand(ctx *commandContext) *cobra.Command {
	var flags connectFlags

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a compatible idle daemon, starting one if needed",
		Long: "Connect searches the registry for an idle daemon whose runtime, working " +
			"directory, and options match, removes entries whose daemon is gone, and " +
			"starts a new daemon when none can be reached. Pass \"*\" to --workdir or " +
			"--runtime to accept any value.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			required, err := flags.requirement(cmd)
			if err != nil {
				return err
			}
			return runConnect(cmd, ctx, flags, required)
		},
	}

	cmd.Flags().StringVar(&flags.workDir, "workdir", ".", "Working directory the daemon must serve (\"*\" for any)")
	cmd.Flags().StringVar(&flags.runtime, "runtime", daemoncontext.CurrentRuntime(), "Runtime identity the daemon must have (\"*\" for any)")
	cmd.Flags().StringArrayVar(&flags.options, "option", nil, "Startup option the daemon must have (repeatable)")
	cmd.Flags().BoolVar(&flags.exactOptions, "exact-options", false, "Require exactly the given options, even when none are given")
	cmd.Flags().BoolVar(&flags.noStart, "no-start", false, "Fail instead of starting a new daemon")
	cmd.Flags().BoolVar(&flags.embedded, "embedded", false, "Start the daemon inside this process instead of forking")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Overall deadline (defaults to connector.deadline_seconds)")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print the connection as JSON")
	return cmd
}

func (f connectFlags) requirement(cmd *cobra.Command) (daemoncontext.Context, error) {
	var required daemoncontext.Context
	if runtime := strings.TrimSpace(f.runtime); runtime != wildcardValue {
		required.Runtime = runtime
	}
	if workDir := strings.TrimSpace(f.workDir); workDir != wildcardValue && workDir != "" {
		built, err := daemoncontext.NewBuilder().WorkDir(workDir).Build()
		if err != nil {
			return daemoncontext.Context{}, err
		}
		required.WorkDir = built.WorkDir
	}
	if f.exactOptions || cmd.Flags().Changed("option") {
		required.Options = append([]string{}, f.options...)
	}
	return required, nil
}

type connectResult struct {
	Address string                `json:"address"`
	Context daemoncontext.Context `json:"context"`
	State   string                `json:"state,omitempty"`
}

func runConnect(cmd *cobra.Command, ctx *commandContext, flags connectFlags, required daemoncontext.Context) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger()
	if err != nil {
		return err
	}
	reg, err := registry.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()

	var start connector.Starter
	switch {
	case flags.noStart:
	case flags.embedded:
		embedded := starter.NewEmbeddedStarter(cfg, reg, logger)
		defer embedded.Stop()
		start = embedded
	default:
		exe, err := executablePath()
		if err != nil {
			return err
		}
		start = starter.NewProcessStarter(exe, ctx.forwardedConfigPath(), cfg, logger)
	}

	opts := connector.OptionsFromConfig(cfg)
	if flags.timeout > 0 {
		opts.Deadline = flags.timeout
	}
	c := connector.New(reg, ipc.NewTransport(logger), start, opts, logger)

	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	var conn *connector.Connection
	if flags.noStart {
		conn, err = c.Find(runCtx, required)
	} else {
		conn, err = c.Connect(runCtx, required)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	result := connectResult{Address: conn.Address, Context: conn.Context}
	if session, ok := conn.Channel.(*ipc.Session); ok {
		statusCtx, cancel := context.WithTimeout(runCtx, opts.ConnectTimeout)
		if status, err := session.Status(statusCtx); err == nil {
			result.State = status.State
		}
		cancel()
	}

	if flags.jsonOutput {
		return writeJSON(cmd, result)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connected to %s\n", result.Address)
	fmt.Fprintf(out, "  uid:      %s\n", result.Context.UID)
	fmt.Fprintf(out, "  pid:      %d\n", result.Context.PID)
	fmt.Fprintf(out, "  runtime:  %s\n", result.Context.Runtime)
	fmt.Fprintf(out, "  workdir:  %s\n", result.Context.WorkDir)
	fmt.Fprintf(out, "  options:  %s\n", strings.Join(result.Context.Options, " "))
	if result.State != "" {
		fmt.Fprintf(out, "  state:    %s\n", titleCase(result.State))
	}
	return nil
}
