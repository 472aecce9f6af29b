package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/infrastructure/database"
	"github.com/emiliopalmerini/caseconf/internal/ports"
	"github.com/emiliopalmerini/caseconf/internal/util"
)

type DisplayConfigRepository struct {
	db *sql.DB
}

func NewDisplayConfigRepository(db *sql.DB) *DisplayConfigRepository {
	return &DisplayConfigRepository{db: db}
}

const configColumns = `id, user_email, case_id, path_config, experiment_id, rl_run_id, arm`

func (r *DisplayConfigRepository) Begin(ctx context.Context) (ports.ConfigBatch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &configBatch{tx: tx}, nil
}

func (r *DisplayConfigRepository) Get(ctx context.Context, id string) (*domain.DisplayConfiguration, error) {
	return database.WithRetry(ctx, readRetries, func() (*domain.DisplayConfiguration, error) {
		row := r.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM display_config WHERE id = ?`, id)
		cfg, err := scanConfig(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get display config: %w", err)
		}
		return cfg, nil
	})
}

func (r *DisplayConfigRepository) List(ctx context.Context, opts ports.ListConfigsOptions) ([]*domain.DisplayConfiguration, error) {
	var (
		where []string
		args  []any
	)
	if opts.UserEmail != nil {
		where = append(where, "user_email = ?")
		args = append(args, *opts.UserEmail)
	}
	if opts.ExperimentID != nil {
		where = append(where, "experiment_id = ?")
		args = append(args, *opts.ExperimentID)
	}
	query := `SELECT ` + configColumns + ` FROM display_config`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY user_email, case_id, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
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

// configBatch stages each configuration inside its own savepoint so a failed
// insert is undone without touching earlier stages.
type configBatch struct {
	tx   *sql.Tx
	seq  int
	done bool
}

func (b *configBatch) Stage(ctx context.Context, cfg *domain.DisplayConfiguration) (bool, error) {
	paths, err := encodePathConfig(cfg.PathConfig)
	if err != nil {
		return false, err
	}

	b.seq++
	sp := fmt.Sprintf("stage_%d", b.seq)
	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
		return false, fmt.Errorf("failed to open savepoint: %w", err)
	}

	res, err := b.tx.ExecContext(ctx, `
		INSERT INTO display_config (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		cfg.ID,
		cfg.UserEmail,
		cfg.CaseID,
		paths,
		util.NullStringPtr(cfg.ExperimentID),
		util.NullInt64(cfg.RlRunID),
		util.NullStringPtr(cfg.Arm),
	)
	if err != nil {
		if _, rbErr := b.tx.ExecContext(ctx, "ROLLBACK TO "+sp); rbErr != nil {
			return false, errors.Join(fmt.Errorf("failed to stage display config %s: %w", cfg.ID, err), rbErr)
		}
		_, _ = b.tx.ExecContext(ctx, "RELEASE "+sp)
		return false, fmt.Errorf("failed to stage display config %s: %w", cfg.ID, err)
	}
	if _, err := b.tx.ExecContext(ctx, "RELEASE "+sp); err != nil {
		return false, fmt.Errorf("failed to release savepoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return true, nil
	}
	return n > 0, nil
}

func (b *configBatch) Get(ctx context.Context, id string) (*domain.DisplayConfiguration, error) {
	row := b.tx.QueryRowContext(ctx, `SELECT `+configColumns+` FROM display_config WHERE id = ?`, id)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staged display config: %w", err)
	}
	return cfg, nil
}

func (b *configBatch) Commit(ctx context.Context) error {
	if err := b.tx.Commit(); err != nil {
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
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back display configs: %w", err)
	}
	return nil
}

func scanConfig(s rowScanner) (*domain.DisplayConfiguration, error) {
	var (
		cfg          domain.DisplayConfiguration
		paths        string
		experimentID sql.NullString
		arm          sql.NullString
		rlRunID      sql.NullInt64
	)
	if err := s.Scan(&cfg.ID, &cfg.UserEmail, &cfg.CaseID, &paths, &experimentID, &rlRunID, &arm); err != nil {
		return nil, err
	}
	cfg.PathConfig = []domain.PathEntry{}
	if err := json.Unmarshal([]byte(paths), &cfg.PathConfig); err != nil {
		return nil, fmt.Errorf("failed to decode path config of %s: %w", cfg.ID, err)
	}
	cfg.ExperimentID = util.NullStringToPtr(experimentID)
	cfg.RlRunID = util.NullInt64ToPtr(rlRunID)
	cfg.Arm = util.NullStringToPtr(arm)
	return &cfg, nil
}

func encodePathConfig(entries []domain.PathEntry) (string, error) {
	if entries == nil {
		entries = []domain.PathEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode path config: %w", err)
	}
	return string(b), nil
}
