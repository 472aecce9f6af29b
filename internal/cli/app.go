package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/emiliopalmerini/caseconf/internal/adapters/otel"
	"github.com/emiliopalmerini/caseconf/internal/adapters/postgres"
	"github.com/emiliopalmerini/caseconf/internal/adapters/turso"
	"github.com/emiliopalmerini/caseconf/internal/assignment"
	"github.com/emiliopalmerini/caseconf/internal/experiment"
	"github.com/emiliopalmerini/caseconf/internal/infrastructure/config"
	"github.com/emiliopalmerini/caseconf/internal/logging"
	"github.com/emiliopalmerini/caseconf/internal/migrate"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	Config  *config.App
	Logger  *slog.Logger
	Metrics ports.MetricsExporter

	Experiments ports.ExperimentRepository
	Runs        ports.RlRunRepository
	Configs     ports.DisplayConfigRepository

	// Exactly one of sqlDB and pool is set, depending on the backend.
	sqlDB *sql.DB
	pool  *pgxpool.Pool

	serviceOpts []experiment.Option
}

// NewAppContext loads configuration from the environment and opens the store.
func NewAppContext(ctx context.Context, logOut io.Writer) (*AppContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	return openAppContext(ctx, cfg, logger)
}

func openAppContext(ctx context.Context, cfg *config.App, logger *slog.Logger) (*AppContext, error) {
	app := &AppContext{Config: cfg, Logger: logger}

	switch cfg.Database.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		repos := postgres.NewRepositories(pool)
		app.pool = pool
		app.Experiments, app.Runs, app.Configs = repos.Experiments, repos.Runs, repos.Configs
	default:
		client, err := turso.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repos := turso.NewRepositories(client.DB)
		app.sqlDB = client.DB
		app.Experiments, app.Runs, app.Configs = repos.Experiments, repos.Runs, repos.Configs
	}

	app.Metrics = otel.FromConfig(ctx, cfg.Otel, logger)
	return app, nil
}

// Service returns the experiment lifecycle service over the open store.
func (a *AppContext) Service() *experiment.Service {
	return experiment.NewService(a.Experiments, a.Runs, a.Logger, a.serviceOpts...)
}

// Engine returns the assignment engine over the open store.
func (a *AppContext) Engine() *assignment.Engine {
	return assignment.NewEngine(a.Experiments, a.Runs, a.Configs, a.Metrics, a.Logger)
}

// Migrate brings the schema to target. A negative target means the latest
// version. It returns how many migrations ran.
func (a *AppContext) Migrate(ctx context.Context, target int) (int, error) {
	if a.pool != nil {
		if target >= 0 && target != postgres.SchemaVersion {
			return 0, fmt.Errorf("postgres backend only supports schema version %d", postgres.SchemaVersion)
		}
		before, err := postgres.CurrentVersion(ctx, a.pool)
		if err != nil {
			return 0, err
		}
		if err := postgres.EnsureSchema(ctx, a.pool, a.Logger); err != nil {
			return 0, err
		}
		if before >= postgres.SchemaVersion {
			return 0, nil
		}
		return 1, nil
	}
	return migrate.New(a.sqlDB, a.Logger).To(ctx, target)
}

// Close flushes metrics and releases the store.
func (a *AppContext) Close(ctx context.Context) error {
	var errs []error
	if a.Metrics != nil {
		errs = append(errs, a.Metrics.Close(ctx))
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.sqlDB != nil {
		errs = append(errs, a.sqlDB.Close())
	}
	return errors.Join(errs...)
}
