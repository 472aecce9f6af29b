package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/pkg/theme"
)

// opener builds the AppContext for one command invocation.
type opener func(ctx context.Context, logOut io.Writer) (*AppContext, error)

// NewRootCmd returns the caseconf command tree backed by the environment configuration.
func NewRootCmd() *cobra.Command {
	return newRootCmd(NewAppContext)
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "caseconf",
		Short: "Per-user, per-case display configuration service",
		Long: `caseconf assigns clinicians to clinical cases with a display configuration
for each case, optionally tagged with an experiment, an arm and an RL run.

Compile configuration spreadsheets, apply them in batches, manage experiments
and their runs, or serve the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(open),
		newMigrateCmd(open),
		newCompileCmd(),
		newAssignCmd(open),
		newSeedCmd(open),
		newExperimentCmd(open),
		newRunCmd(open),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, theme.Default().Error.Render("Error: "+describe(err)))
		os.Exit(1)
	}
}

// describe renders domain errors as "kind: message" and anything else verbatim.
func describe(err error) string {
	kind := domain.KindOf(err)
	if kind == domain.KindUnknown {
		return err.Error()
	}
	return kind.String() + ": " + domain.MessageOf(err)
}

// withApp opens the AppContext, runs fn and closes the context afterwards.
func withApp(cmd *cobra.Command, open opener, fn func(ctx context.Context, app *AppContext) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil {
			app.Logger.Warn("failed to close app context", "error", cerr)
		}
	}()
	return fn(ctx, app)
}
