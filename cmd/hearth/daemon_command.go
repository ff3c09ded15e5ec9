package main

import (
	"github.com/spf13/cobra"

	"hearth/internal/daemoncontext"
	"hearth/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var workDir string
	var runtime string
	var options []string
	var foreground bool

	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run a hearth daemon (internal)",
		Hidden:       true,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				Want: daemoncontext.Context{
					WorkDir: workDir,
					Runtime: runtime,
					Options: append([]string{}, options...),
				},
				Foreground: foreground,
			})
		},
	}
	cmd.Flags().StringVar(&workDir, "workdir", "", "Working directory the daemon serves")
	cmd.Flags().StringVar(&runtime, "runtime", "", "Runtime identity to advertise")
	cmd.Flags().StringArrayVar(&options, "option", nil, "Startup option (repeatable)")
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Also log to stderr")
	return cmd
}
