package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/caseconf/internal/compiler"
	"github.com/emiliopalmerini/caseconf/internal/domain"
)

type assignOptions struct {
	experimentID string
	arm          string
	runID        int64
	asJSON       bool
}

func (o assignOptions) tags(cmd *cobra.Command) domain.Tags {
	var t domain.Tags
	if o.experimentID != "" {
		t.ExperimentID = &o.experimentID
	}
	if o.arm != "" {
		t.Arm = &o.arm
	}
	if cmd.Flags().Changed("run") {
		t.RlRunID = &o.runID
	}
	return t
}

func newAssignCmd(open opener) *cobra.Command {
	var opts assignOptions

	cmd := &cobra.Command{
		Use:   "assign <file.csv>",
		Short: "Compile a spreadsheet and store its configurations",
		Long: `Compile a configuration spreadsheet and apply every configuration in one batch.

Items that fail validation are reported and skipped; the rest are stored
together. Tagging with an experiment checks that it is active, that the arm
exists and that each case belongs to its case pool.

Examples:
  caseconf assign configs.csv
  caseconf assign configs.csv --experiment exp-1a2b3c4d5e6f --arm control --run 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !compiler.IsCSVFile(path) {
				return domain.NewError(domain.KindInvalidCSV, "Only .csv files are accepted")
			}
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", path, err)
				}
				defer f.Close()

				engine := app.Engine()
				configs, err := engine.Compile(ctx, f)
				if err != nil {
					return err
				}
				if len(configs) == 0 {
					return domain.NewError(domain.KindInvalidRequest, "File contains no configurations")
				}
				result, err := engine.ApplyCompiled(ctx, configs, opts.tags(cmd))
				if err != nil {
					return err
				}
				if opts.asJSON {
					return printJSON(cmd.OutOrStdout(), result)
				}
				printBatch(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.experimentID, "experiment", "e", "", "Experiment to tag the configurations with")
	cmd.Flags().StringVarP(&opts.arm, "arm", "a", "", "Experiment arm")
	cmd.Flags().Int64VarP(&opts.runID, "run", "r", 0, "RL run id")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the batch result as JSON")
	return cmd
}
