package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hearth/internal/config"
	"hearth/internal/daemonctl"
	"hearth/internal/registry"
)

func newDaemonsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var probe bool

	cmd := &cobra.Command{
		Use:     "daemons",
		Aliases: []string{"ls", "list"},
		Short:   "List registered daemons",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withRegistry(func(cfg *config.Config, reg registry.Registry) error {
				entries, err := daemonctl.List(cmd.Context(), reg)
				if err != nil {
					return err
				}
				var probes map[string]daemonctl.ProbeResult
				if probe {
					probes = make(map[string]daemonctl.ProbeResult, len(entries))
					for _, e := range entries {
						probes[e.Address] = daemonctl.Probe(cmd.Context(), e.Address, e.Context.PID, cfg.ConnectTimeout())
					}
				}
				if jsonOutput {
					return writeJSON(cmd, daemonViews(entries, probes))
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No daemons registered")
					return nil
				}
				fmt.Fprintln(out, renderDaemonTable(entries, probes, shouldColorize(out), time.Now()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
	cmd.Flags().BoolVar(&probe, "probe", false, "Ping each daemon and report reachability")
	return cmd
}

type daemonView struct {
	registry.Entry
	Reachable *bool `json:"reachable,omitempty"`
}

func daemonViews(entries []registry.Entry, probes map[string]daemonctl.ProbeResult) []daemonView {
	views := make([]daemonView, 0, len(entries))
	for _, e := range entries {
		view := daemonView{Entry: e}
		if p, ok := probes[e.Address]; ok {
			reachable := p.Reachable
			view.Reachable = &reachable
		}
		views = append(views, view)
	}
	return views
}

func renderDaemonTable(entries []registry.Entry, probes map[string]daemonctl.ProbeResult, colorize bool, now time.Time) string {
	columns := []column{
		leftColumn("Address"), leftColumn("State"), leftColumn("UID"), rightColumn("PID"),
		leftColumn("Work Dir"), leftColumn("Runtime"), leftColumn("Options"), rightColumn("Last Seen"),
	}
	if probes != nil {
		columns = append(columns, leftColumn("Reachable"))
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		row := []string{
			e.Address,
			stateLabel(e.State, colorize),
			shortUID(e.Context.UID),
			strconv.Itoa(e.Context.PID),
			e.Context.WorkDir,
			e.Context.Runtime,
			strings.Join(e.Context.Options, " "),
			formatAge(now.Sub(e.LastSeen)),
		}
		if probes != nil {
			row = append(row, yesNo(probes[e.Address].Reachable))
		}
		rows = append(rows, row)
	}
	return renderTable(columns, rows)
}

func shortUID(uid string) string {
	if len(uid) > 8 {
		return uid[:8]
	}
	return uid
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
