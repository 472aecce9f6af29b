package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/emiliopalmerini/caseconf/internal/web"
)

func newServeCmd(open opener) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API and the experiments overview page.

Examples:
  caseconf serve              # Listen on CASECONF_PORT (default 8080)
  caseconf serve --port 3000  # Listen on port 3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *AppContext) error {
				if !cmd.Flags().Changed("port") {
					port = app.Config.Port
				}
				return runServe(ctx, app, port)
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	return cmd
}

func runServe(ctx context.Context, app *AppContext, port int) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := web.NewServer(port, app.Service(), app.Engine(), app.Configs, app.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			app.Logger.Info("shutting down")
		}
		return nil
	})
	return g.Wait()
}
