// Package postgres stores experiments, runs and display configurations in
// PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/emiliopalmerini/caseconf/internal/infrastructure/config"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the version written by EnsureSchema.
const SchemaVersion = 1

// NewPool connects to the database described by cfg.
func NewPool(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("CASECONF_DATABASE_URL environment variable is required")
	}
	pool, err := pgxpool.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

// CurrentVersion returns the applied schema version, or 0 on an empty database.
func CurrentVersion(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var version int
	if err := pool.QueryRow(ctx, `SELECT coalesce(max(version), 0) FROM schema_version`).Scan(&version); err != nil {
		if isCode(err, pgerrcode.UndefinedTable) {
			return 0, nil
		}
		return -1, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// EnsureSchema creates the tables when the database is behind SchemaVersion.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	current, err := CurrentVersion(ctx, pool)
	if err != nil {
		return err
	}
	if current >= SchemaVersion {
		logger.Debug("postgres schema up to date", "version", current)
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("failed to reset schema version: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	logger.Info("postgres schema applied", "from", current, "to", SchemaVersion)
	return nil
}

// Repositories holds all postgres repository implementations as port interfaces.
type Repositories struct {
	Experiments ports.ExperimentRepository
	Runs        ports.RlRunRepository
	Configs     ports.DisplayConfigRepository
}

func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Experiments: NewExperimentRepository(pool),
		Runs:        NewRlRunRepository(pool),
		Configs:     NewDisplayConfigRepository(pool),
	}
}

// isCode reports whether err carries one of the given SQLSTATE codes.
func isCode(err error, codes ...string) bool {
	pgerr := new(pgconn.PgError)
	if !errors.As(err, &pgerr) {
		return false
	}
	for _, c := range codes {
		if pgerr.Code == c {
			return true
		}
	}
	return false
}
