package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	orgdomain "github.com/smallbiznis/schemashift/internal/organization/domain"
	"github.com/spf13/cobra"
)

var errIncomplete = errors.New("backfill coverage incomplete")

func verifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that every user has an organization and every primary team a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, d deps) error {
				report, err := d.organizations.Verify(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				} else {
					printVerify(cmd.OutOrStdout(), report)
				}
				if !report.Complete() {
					return errIncomplete
				}
				return nil
			})
		},
	}
}

func printVerify(w io.Writer, report *orgdomain.VerifyReport) {
	check := func(label string, n int64) {
		mark := green("ok")
		if n > 0 {
			mark = red(fmt.Sprintf("%d", n))
		}
		fmt.Fprintf(w, "%-36s %s\n", label, mark)
	}

	info := func(label string, n int64) {
		fmt.Fprintf(w, "%-36s %s\n", label, faint(fmt.Sprintf("%d", n)))
	}

	fmt.Fprintf(w, "%-36s %d\n", "users", report.Users)
	check("users without organization", report.UsersWithoutOrganization)
	check(fmt.Sprintf("%q teams without member", report.TeamName), report.PrimaryTeamsWithoutMember)
	info(fmt.Sprintf("organizations without %q", report.TeamName), report.OrganizationsWithoutTeam)
	info("users without membership", report.UsersWithoutMembership)
	for _, email := range report.Unlinked {
		fmt.Fprintf(w, "  %s %s\n", faint("unlinked"), email)
	}
}
