package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/smallbiznis/schemashift/internal/migration"
	"github.com/spf13/cobra"
)

func upCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every unit that is not in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, d deps) error {
				summary, err := d.runner.Up(ctx)
				printSummary(cmd.OutOrStdout(), opts, summary, err)
				return err
			})
		},
	}
}

func downCmd(opts *options) *cobra.Command {
	var (
		steps int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent units",
		Long: `Revert units in effect, newest first.

Columns, constraints and indexes a unit added are removed. Tables that still
hold rows are kept unless migration.preserve_data is false, and rows derived
by a backfill are never deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, d deps) error {
				n := steps
				if all {
					n = len(d.runner.Units())
				}
				summary, err := d.runner.Down(ctx, n)
				printSummary(cmd.OutOrStdout(), opts, summary, err)
				return err
			})
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of units to revert")
	cmd.Flags().BoolVar(&all, "all", false, "revert every unit in effect")
	return cmd
}

type summaryOutput struct {
	RunID     string   `json:"run_id"`
	Direction string   `json:"direction"`
	Units     []string `json:"units"`
	Failed    string   `json:"failed,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func printSummary(w io.Writer, opts *options, summary migration.RunSummary, err error) {
	out := summaryOutput{
		RunID:     summary.RunID,
		Direction: string(summary.Direction),
		Units:     summary.Units,
	}
	var unitErr *migration.UnitError
	if errors.As(err, &unitErr) {
		out.Failed = unitErr.Unit
		out.Error = unitErr.Err.Error()
	}

	if opts.jsonOutput {
		_ = writeJSON(w, out)
		return
	}

	verb := "applied"
	if summary.Direction == migration.DirectionDown {
		verb = "reverted"
	}
	for _, id := range summary.Units {
		fmt.Fprintf(w, "%s %s\n", green(verb), id)
	}
	if out.Failed != "" {
		fmt.Fprintf(w, "%s %s: %s\n", red("failed"), out.Failed, out.Error)
	}
	if len(summary.Units) == 0 && err == nil {
		fmt.Fprintln(w, faint("nothing to do"))
	}
	fmt.Fprintf(w, "%s %s\n", faint("run"), summary.RunID)
}
