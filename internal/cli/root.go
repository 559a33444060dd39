// Package cli wires the schemashift commands.
package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

type options struct {
	configFile string
	jsonOutput bool
	timeout    time.Duration
}

func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "schemashift",
		Short: "Idempotent, reversible schema changes and backfills",
		Long: `schemashift applies versioned schema units against PostgreSQL or SQLite.

Every unit runs in one transaction together with its ledger row. Units already
applied are skipped, a failing unit is rolled back and halts the run, and
reverting keeps the rows a backfill derived.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (environment variables take precedence)")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "abort the run after this long (0 waits for the database)")

	cmd.AddCommand(
		upCmd(opts),
		downCmd(opts),
		statusCmd(opts),
		verifyCmd(opts),
		seedCmd(opts),
		versionCmd(opts),
	)
	return cmd
}
