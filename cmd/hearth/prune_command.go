package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hearth/internal/config"
	"hearth/internal/daemonctl"
	"hearth/internal/registry"
)

func newPruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove registry entries whose daemon no longer answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withRegistry(func(cfg *config.Config, reg registry.Registry) error {
				removed, err := daemonctl.Prune(cmd.Context(), reg, cfg.ConnectTimeout())
				out := cmd.OutOrStdout()
				for _, address := range removed {
					fmt.Fprintf(out, "Removed %s\n", address)
				}
				if err != nil {
					return err
				}
				if len(removed) == 0 {
					fmt.Fprintln(out, "No stale daemons found")
				}
				return nil
			})
		},
	}
}
