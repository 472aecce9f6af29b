package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/pkg/theme"
)

const defaultSeedUser = "researcher@demo.augmed.org"

var seedCases = []int64{1001, 1002, 1003}

// demoConfigurations returns one unscoped configuration per demo case for user.
func demoConfigurations(user string) []domain.DisplayConfiguration {
	paths := []domain.PathEntry{
		{Path: "BACKGROUND.Family History.Cancer: No", Style: domain.PathStyle{Highlight: true}},
		{Path: "BACKGROUND.Medical History.Hypertension: Yes", Style: domain.PathStyle{Highlight: true}},
		{Path: "BACKGROUND.Social History.Smoke.non-smoker"},
		{Path: "BACKGROUND.Social History.Drink"},
		{Path: "RISK ASSESSMENT.CRC risk assessments"},
	}

	configs := make([]domain.DisplayConfiguration, len(seedCases))
	for i, caseID := range seedCases {
		configs[i] = domain.DisplayConfiguration{
			ID:         domain.DeriveConfigID(user, caseID, domain.Tags{}),
			UserEmail:  user,
			CaseID:     caseID,
			PathConfig: append([]domain.PathEntry(nil), paths...),
		}
	}
	return configs
}

func newSeedCmd(open opener) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store demo display configurations",
		Long: `Store one display configuration per demo case (1001, 1002, 1003).

Seeding is idempotent: configurations that already exist are left unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				result, err := app.Engine().Seed(ctx, demoConfigurations(user))
				if err != nil {
					return err
				}
				added, failed := result.Counts()
				s := theme.Default()
				fmt.Fprintln(cmd.OutOrStdout(), s.Success.Render(fmt.Sprintf("Seeded %d configuration(s) for %s", added, user)))
				if failed > 0 {
					printBatch(cmd.OutOrStdout(), result)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", defaultSeedUser, "User email the demo configurations belong to")
	return cmd
}
