package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

type ExperimentRepository struct {
	pool *pgxpool.Pool
}

func NewExperimentRepository(pool *pgxpool.Pool) *ExperimentRepository {
	return &ExperimentRepository{pool: pool}
}

const experimentColumns = `experiment_id, name, description, status, arms, case_pool, created_at, updated_at`

func (r *ExperimentRepository) Create(ctx context.Context, e *domain.Experiment) error {
	arms, err := json.Marshal(e.Arms)
	if err != nil {
		return fmt.Errorf("failed to encode arms: %w", err)
	}
	pool, err := jsonOrNull(e.CasePool, e.CasePool == nil)
	if err != nil {
		return fmt.Errorf("failed to encode case pool: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO experiment (`+experimentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ExperimentID, e.Name, e.Description, string(e.Status), string(arms), pool,
		e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if isCode(err, pgerrcode.UniqueViolation) {
		return domain.NewError(domain.KindInvalidRequest, "Experiment '%s' already exists", e.ExperimentID)
	}
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}
	return nil
}

func (r *ExperimentRepository) GetByID(ctx context.Context, experimentID string) (*domain.Experiment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+experimentColumns+` FROM experiment WHERE experiment_id = $1`, experimentID)
	e, err := scanExperiment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return e, nil
}

func (r *ExperimentRepository) List(ctx context.Context, opts ports.ListExperimentsOptions) ([]*domain.Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM experiment`
	var args []any
	if opts.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*opts.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	experiments := make([]*domain.Experiment, 0)
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, e)
	}
	return experiments, rows.Err()
}

func (r *ExperimentRepository) UpdateStatus(ctx context.Context, experimentID string, status domain.ExperimentStatus, updatedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE experiment SET status = $1, updated_at = $2 WHERE experiment_id = $3`,
		string(status), updatedAt.UTC(), experimentID)
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}
	return nil
}

func scanExperiment(row pgx.Row) (*domain.Experiment, error) {
	var (
		e            domain.Experiment
		status       string
		arms, pool   []byte
		created, upd time.Time
	)
	if err := row.Scan(&e.ExperimentID, &e.Name, &e.Description, &status, &arms, &pool, &created, &upd); err != nil {
		return nil, err
	}

	e.Status = domain.ExperimentStatus(status)
	if err := json.Unmarshal(arms, &e.Arms); err != nil {
		return nil, fmt.Errorf("failed to decode arms of %s: %w", e.ExperimentID, err)
	}
	if pool != nil {
		e.CasePool = []int64{}
		if err := json.Unmarshal(pool, &e.CasePool); err != nil {
			return nil, fmt.Errorf("failed to decode case pool of %s: %w", e.ExperimentID, err)
		}
	}
	e.CreatedAt = created.UTC()
	e.UpdatedAt = upd.UTC()
	return &e, nil
}

// jsonOrNull encodes v as a JSON text argument, or SQL NULL when null is set.
func jsonOrNull(v any, null bool) (any, error) {
	if null {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
