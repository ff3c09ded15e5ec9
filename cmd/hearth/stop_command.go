package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hearth/internal/config"
	"hearth/internal/daemonctl"
	"hearth/internal/registry"
)

func newStopCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop [address]",
		Short: "Stop a daemon, or every daemon with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass either an address or --all, not both")
			}
			if !all && len(args) != 1 {
				return errors.New("an address is required (see `hearth daemons`), or pass --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRegistry(func(cfg *config.Config, reg registry.Registry) error {
				out := cmd.OutOrStdout()
				if all {
					results, err := daemonctl.StopAll(cmd.Context(), reg, cfg.ConnectTimeout(), grace)
					for _, res := range results {
						printStopResult(cmd, res)
					}
					if err != nil {
						return err
					}
					if len(results) == 0 {
						fmt.Fprintln(out, "No running daemons")
					}
					return nil
				}
				res, err := daemonctl.Stop(cmd.Context(), reg, args[0], cfg.ConnectTimeout(), grace)
				if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					fmt.Fprintf(out, "Daemon %s was not running; entry removed\n", args[0])
					return nil
				}
				if err != nil {
					return err
				}
				printStopResult(cmd, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Stop every registered daemon")
	cmd.Flags().DurationVar(&grace, "grace", 5*time.Second, "How long to wait before killing a daemon that ignores the stop request")
	return cmd
}

func printStopResult(cmd *cobra.Command, res daemonctl.StopResult) {
	out := cmd.OutOrStdout()
	switch {
	case res.ForcedKill:
		fmt.Fprintf(out, "Killed %s (pid %d) after it ignored the stop request\n", res.Address, res.PID)
	default:
		fmt.Fprintf(out, "Stopped %s\n", res.Address)
	}
}
