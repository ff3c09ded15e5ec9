package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"hearth/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs [uid]",
		Short: "Show a daemon log (the most recently started daemon by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			uid := ""
			if len(args) == 1 {
				uid = args[0]
			}
			path, err := logs.Resolve(cfg.Paths.LogDir, uid)
			if err != nil {
				return err
			}
			chunk, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printLines(out, chunk.Lines)
			if !follow {
				return nil
			}
			err = logs.Follow(cmd.Context(), path, chunk.Offset, 250*time.Millisecond, func(batch []string) error {
				printLines(out, batch)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	return cmd
}

func printLines(out io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
