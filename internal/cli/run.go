package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/experiment"
)

func newRunCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage RL runs",
		Long: `Create runs for an experiment and move them through their lifecycle:
pending -> running -> completed, with failed reachable from pending or running.`,
	}
	cmd.AddCommand(
		newRunCreateCmd(open),
		newRunListCmd(open),
		newRunStartCmd(open),
		newRunCompleteCmd(open),
		newRunFailCmd(open),
	)
	return cmd
}

// loadRunParams reads a YAML or JSON object of run parameters.
func loadRunParams(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var params map[string]any
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, domain.NewError(domain.KindInvalidRequest, "Invalid run params file: %v", err)
	}
	return params, nil
}

func parseRunID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, domain.NewError(domain.KindRunNotFound, "Run '%s' not found", arg)
	}
	return id, nil
}

func newRunCreateCmd(open opener) *cobra.Command {
	var (
		triggeredBy  string
		modelVersion string
		paramsFile   string
	)

	cmd := &cobra.Command{
		Use:   "create <experiment-id>",
		Short: "Create a pending run for an active experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := experiment.CreateRunInput{TriggeredBy: triggeredBy}
			if cmd.Flags().Changed("model-version") {
				in.ModelVersion = &modelVersion
			}
			if paramsFile != "" {
				params, err := loadRunParams(paramsFile)
				if err != nil {
					return err
				}
				in.RunParams = params
			}
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				run, err := app.Service().CreateRun(ctx, args[0], in)
				if err != nil {
					return err
				}
				printRun(cmd.OutOrStdout(), run)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "Who triggered the run (default manual)")
	cmd.Flags().StringVar(&modelVersion, "model-version", "", "Model version producing the configurations")
	cmd.Flags().StringVar(&paramsFile, "params-file", "", "YAML or JSON file with run parameters")
	return cmd
}

func newRunListCmd(open opener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <experiment-id>",
		Short: "List the runs of an experiment, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				runs, err := app.Service().ListRuns(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), runs)
				}
				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newRunStartCmd(open opener) *cobra.Command {
	var modelVersion string

	cmd := &cobra.Command{
		Use:   "start <run-id>",
		Short: "Move a pending run to running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			var mv *string
			if cmd.Flags().Changed("model-version") {
				mv = &modelVersion
			}
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				run, err := app.Service().StartRun(ctx, id, mv)
				if err != nil {
					return err
				}
				printRun(cmd.OutOrStdout(), run)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&modelVersion, "model-version", "", "Model version producing the configurations")
	return cmd
}

func newRunCompleteCmd(open opener) *cobra.Command {
	var configsGenerated, answersConsumed int64

	cmd := &cobra.Command{
		Use:   "complete <run-id>",
		Short: "Move a running run to completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			var c experiment.RunCompletion
			if cmd.Flags().Changed("configs-generated") {
				c.ConfigsGenerated = &configsGenerated
			}
			if cmd.Flags().Changed("answers-consumed") {
				c.AnswersConsumed = &answersConsumed
			}
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				run, err := app.Service().CompleteRun(ctx, id, c)
				if err != nil {
					return err
				}
				printRun(cmd.OutOrStdout(), run)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&configsGenerated, "configs-generated", 0, "Number of configurations the run generated")
	cmd.Flags().Int64Var(&answersConsumed, "answers-consumed", 0, "Number of answers the run consumed")
	return cmd
}

func newRunFailCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "fail <run-id>",
		Short: "Mark a pending or running run as failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				run, err := app.Service().FailRun(ctx, id)
				if err != nil {
					return err
				}
				printRun(cmd.OutOrStdout(), run)
				return nil
			})
		},
	}
}
