package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

type DisplayConfigRepository struct {
	pool *pgxpool.Pool
}

func NewDisplayConfigRepository(pool *pgxpool.Pool) *DisplayConfigRepository {
	return &DisplayConfigRepository{pool: pool}
}

const configColumns = `id, user_email, case_id, path_config, experiment_id, rl_run_id, arm`

func (r *DisplayConfigRepository) Begin(ctx context.Context) (ports.ConfigBatch, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &configBatch{tx: tx}, nil
}

func (r *DisplayConfigRepository) Get(ctx context.Context, id string) (*domain.DisplayConfiguration, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM display_config WHERE id = $1`, id)
	cfg, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get display config: %w", err)
	}
	return cfg, nil
}

func (r *DisplayConfigRepository) List(ctx context.Context, opts ports.ListConfigsOptions) ([]*domain.DisplayConfiguration, error) {
	query, args := listConfigsQuery(opts)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list display configs: %w", err)
	}
	defer rows.Close()

	configs := make([]*domain.DisplayConfiguration, 0)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan display config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func listConfigsQuery(opts ports.ListConfigsOptions) (string, []any) {
	var (
		where []string
		args  []any
	)
	if opts.UserEmail != nil {
		args = append(args, *opts.UserEmail)
		where = append(where, fmt.Sprintf("user_email = $%d", len(args)))
	}
	if opts.ExperimentID != nil {
		args = append(args, *opts.ExperimentID)
		where = append(where, fmt.Sprintf("experiment_id = $%d", len(args)))
	}
	query := `SELECT ` + configColumns + ` FROM display_config`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	return query + ` ORDER BY user_email, case_id, id`, args
}

// configBatch runs each stage in a nested transaction, which pgx maps to a
// savepoint, so one rejected insert does not abort the outer transaction.
type configBatch struct {
	tx   pgx.Tx
	done bool
}

func (b *configBatch) Stage(ctx context.Context, cfg *domain.DisplayConfiguration) (bool, error) {
	entries := cfg.PathConfig
	if entries == nil {
		entries = []domain.PathEntry{}
	}
	paths, err := json.Marshal(entries)
	if err != nil {
		return false, fmt.Errorf("failed to encode path config: %w", err)
	}

	sp, err := b.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to open savepoint: %w", err)
	}
	tag, err := sp.Exec(ctx, `
		INSERT INTO display_config (`+configColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		cfg.ID, cfg.UserEmail, cfg.CaseID, string(paths), cfg.ExperimentID, cfg.RlRunID, cfg.Arm,
	)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return false, errors.Join(fmt.Errorf("failed to stage display config %s: %w", cfg.ID, err), rbErr)
		}
		return false, fmt.Errorf("failed to stage display config %s: %w", cfg.ID, err)
	}
	if err := sp.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (b *configBatch) Get(ctx context.Context, id string) (*domain.DisplayConfiguration, error) {
	row := b.tx.QueryRow(ctx, `SELECT `+configColumns+` FROM display_config WHERE id = $1`, id)
	cfg, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staged display config: %w", err)
	}
	return cfg, nil
}

func (b *configBatch) Commit(ctx context.Context) error {
	if err := b.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit display configs: %w", err)
	}
	b.done = true
	return nil
}

func (b *configBatch) Rollback(ctx context.Context) error {
	if b.done {
		return nil
	}
	b.done = true
	if err := b.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to roll back display configs: %w", err)
	}
	return nil
}

func scanConfig(row pgx.Row) (*domain.DisplayConfiguration, error) {
	var (
		cfg   domain.DisplayConfiguration
		paths []byte
	)
	if err := row.Scan(&cfg.ID, &cfg.UserEmail, &cfg.CaseID, &paths, &cfg.ExperimentID, &cfg.RlRunID, &cfg.Arm); err != nil {
		return nil, err
	}
	cfg.PathConfig = []domain.PathEntry{}
	if err := json.Unmarshal(paths, &cfg.PathConfig); err != nil {
		return nil, fmt.Errorf("failed to decode path config of %s: %w", cfg.ID, err)
	}
	return &cfg, nil
}
