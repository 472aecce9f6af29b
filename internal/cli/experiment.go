package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/experiment"
	"github.com/emiliopalmerini/caseconf/internal/pkg/theme"
)

func newExperimentCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Manage experiments",
		Long:  `Create, list, inspect and change the status of experiments.`,
	}
	cmd.AddCommand(
		newExperimentCreateCmd(open),
		newExperimentListCmd(open),
		newExperimentShowCmd(open),
		newExperimentStatusCmd(open),
	)
	return cmd
}

type experimentCreateOptions struct {
	file        string
	description string
	arms        []string
	casePool    []int64
	asJSON      bool
}

// input merges the definition file, the positional name and the flags.
// Flags and the name argument win over the file.
func (o experimentCreateOptions) input(cmd *cobra.Command, args []string) (experiment.CreateExperimentInput, error) {
	var in experiment.CreateExperimentInput
	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return in, fmt.Errorf("failed to read %s: %w", o.file, err)
		}
		if err := yaml.Unmarshal(data, &in); err != nil {
			return in, domain.NewError(domain.KindInvalidRequest, "Invalid experiment file: %v", err)
		}
	}
	if len(args) == 1 {
		in.Name = args[0]
	}
	if cmd.Flags().Changed("description") {
		in.Description = &o.description
	}
	if len(o.arms) > 0 {
		in.Arms = make([]domain.Arm, len(o.arms))
		for i, name := range o.arms {
			in.Arms[i] = domain.Arm{Name: name}
		}
	}
	if cmd.Flags().Changed("case-pool") {
		in.CasePool = append([]int64{}, o.casePool...)
	}
	if in.Name == "" || len(in.Arms) == 0 {
		return in, domain.NewError(domain.KindInvalidRequest, "'name' and 'arms' are required")
	}
	return in, nil
}

func newExperimentCreateCmd(open opener) *cobra.Command {
	var opts experimentCreateOptions

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new experiment",
		Long: `Create a new active experiment.

Arms come from repeated --arm flags or from a YAML definition file:

  name: collapse-background
  description: Collapse background sections
  arms:
    - name: control
    - name: collapsed
      weight: 0.5
  case_pool: [1001, 1002]

Examples:
  caseconf experiment create "collapse-background" --arm control --arm collapsed
  caseconf experiment create --file experiment.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := opts.input(cmd, args)
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				exp, err := app.Service().CreateExperiment(ctx, in)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return printJSON(cmd.OutOrStdout(), exp)
				}
				fmt.Fprintln(cmd.OutOrStdout(), theme.Default().Success.Render(
					fmt.Sprintf("Created experiment %s (%s)", exp.Name, exp.ExperimentID)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "YAML experiment definition")
	cmd.Flags().StringVarP(&opts.description, "description", "d", "", "Experiment description")
	cmd.Flags().StringArrayVar(&opts.arms, "arm", nil, "Arm name (repeatable)")
	cmd.Flags().Int64SliceVar(&opts.casePool, "case-pool", nil, "Restrict the experiment to these case ids")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the experiment as JSON")
	return cmd
}

func newExperimentListCmd(open opener) *cobra.Command {
	var (
		status string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				exps, err := app.Service().ListExperiments(ctx, status)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), exps)
				}
				return printExperiments(cmd.OutOrStdout(), exps)
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Only list experiments with this status")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newExperimentShowCmd(open opener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <experiment-id>",
		Short: "Show an experiment and its runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				detail, err := app.Service().GetExperiment(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), detail)
				}
				out := cmd.OutOrStdout()
				printExperiment(out, detail.Experiment)
				fmt.Fprintln(out)
				fmt.Fprintln(out, theme.Default().Title.Render("Runs"))
				return printRuns(out, detail.Runs)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newExperimentStatusCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "status <experiment-id> <status>",
		Short: "Change the status of an experiment",
		Long: `Change the status of an experiment to active, paused, completed or archived.
Only active experiments accept new runs and tagged assignments.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				exp, err := app.Service().UpdateExperimentStatus(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				s := theme.Default()
				fmt.Fprintf(cmd.OutOrStdout(), "Experiment %s is now %s\n",
					exp.ExperimentID, s.Status(string(exp.Status)).Render(string(exp.Status)))
				return nil
			})
		},
	}
}
