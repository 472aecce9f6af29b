package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/caseconf/internal/pkg/theme"
)

func newMigrateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [version]",
		Short: "Run database migrations",
		Long: `Run database migrations.

Without arguments, runs all pending migrations (up).
With a version number, migrates to that specific version (up or down as needed).
The postgres backend has a single schema version.

Examples:
  caseconf migrate      # Run all pending migrations
  caseconf migrate 1    # Migrate to version 1
  caseconf migrate 0    # Rollback all migrations`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := -1
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return fmt.Errorf("invalid version %q", args[0])
				}
				target = v
			}
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				applied, err := app.Migrate(ctx, target)
				if err != nil {
					return err
				}
				s := theme.Default()
				if applied == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), s.Muted.Render("Database is up to date."))
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.Success.Render(fmt.Sprintf("Applied %d migration(s).", applied)))
				return nil
			})
		},
	}
}
