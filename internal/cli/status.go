package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/smallbiznis/schemashift/internal/migration"
	"github.com/spf13/cobra"
)

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every unit with its ledger state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, d deps) error {
				statuses, err := d.runner.Status(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), statusRows(statuses))
				}
				return printStatus(cmd.OutOrStdout(), statuses)
			})
		},
	}
}

type statusRow struct {
	ID         string         `json:"id"`
	State      string         `json:"state"`
	Direction  string         `json:"direction,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
	Reversible bool           `json:"reversible"`
	Known      bool           `json:"known"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

func statusRows(statuses []migration.UnitStatus) []statusRow {
	rows := make([]statusRow, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, statusRow{
			ID:         s.ID,
			State:      string(s.State),
			Direction:  string(s.Direction),
			RunID:      s.RunID,
			UpdatedAt:  s.UpdatedAt,
			Reversible: s.Reversible,
			Known:      s.Known,
			Error:      s.Error,
			Details:    s.Details,
		})
	}
	return rows
}

func printStatus(w io.Writer, statuses []migration.UnitStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, bold("UNIT")+"\t"+bold("STATE")+"\t"+bold("UPDATED")+"\t"+bold("NOTE"))
	for _, s := range statuses {
		updated := "-"
		if s.UpdatedAt != nil {
			updated = s.UpdatedAt.Format(time.RFC3339)
		}
		note := ""
		switch {
		case !s.Known:
			note = yellow("not registered")
		case s.Error != "":
			note = red(fmt.Sprintf("%s: %s", s.Direction, s.Error))
		case !s.Reversible:
			note = faint("irreversible")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, colorState(s.State), updated, note)
	}
	return tw.Flush()
}
