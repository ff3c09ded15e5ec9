package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hearth/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, registry access, and the daemon executable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, _ := executablePath()
			results := preflight.RunAll(cmd.Context(), cfg, exe)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if ctx.configExists {
				fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			} else {
				fmt.Fprintln(out, "Config: defaults (no config file found)")
			}
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return errors.New(pluralize(len(failed), "check", "checks") + " failed")
			}
			return nil
		},
	}
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
