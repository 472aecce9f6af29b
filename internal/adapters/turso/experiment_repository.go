package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/infrastructure/database"
	"github.com/emiliopalmerini/caseconf/internal/ports"
	"github.com/emiliopalmerini/caseconf/internal/util"
)

const readRetries = 2

type ExperimentRepository struct {
	db *sql.DB
}

func NewExperimentRepository(db *sql.DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

const experimentColumns = `experiment_id, name, description, status, arms, case_pool, created_at, updated_at`

func (r *ExperimentRepository) Create(ctx context.Context, e *domain.Experiment) error {
	arms, err := json.Marshal(e.Arms)
	if err != nil {
		return fmt.Errorf("failed to encode arms: %w", err)
	}
	pool, err := encodeCasePool(e.CasePool)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO experiment (`+experimentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ExperimentID,
		e.Name,
		util.NullStringPtr(e.Description),
		string(e.Status),
		string(arms),
		pool,
		util.FormatTime(e.CreatedAt),
		util.FormatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}
	return nil
}

func (r *ExperimentRepository) GetByID(ctx context.Context, experimentID string) (*domain.Experiment, error) {
	return database.WithRetry(ctx, readRetries, func() (*domain.Experiment, error) {
		row := r.db.QueryRowContext(ctx,
			`SELECT `+experimentColumns+` FROM experiment WHERE experiment_id = ?`, experimentID)
		e, err := scanExperiment(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get experiment: %w", err)
		}
		return e, nil
	})
}

func (r *ExperimentRepository) List(ctx context.Context, opts ports.ListExperimentsOptions) ([]*domain.Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM experiment`
	var args []any
	if opts.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*opts.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
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
	_, err := r.db.ExecContext(ctx,
		`UPDATE experiment SET status = ?, updated_at = ? WHERE experiment_id = ?`,
		string(status), util.FormatTime(updatedAt), experimentID)
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(s rowScanner) (*domain.Experiment, error) {
	var (
		e                    domain.Experiment
		description, pool    sql.NullString
		status, arms         string
		createdAt, updatedAt string
	)
	if err := s.Scan(&e.ExperimentID, &e.Name, &description, &status, &arms, &pool, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	e.Description = util.NullStringToPtr(description)
	e.Status = domain.ExperimentStatus(status)
	if err := json.Unmarshal([]byte(arms), &e.Arms); err != nil {
		return nil, fmt.Errorf("failed to decode arms of %s: %w", e.ExperimentID, err)
	}
	if pool.Valid {
		e.CasePool = []int64{}
		if err := json.Unmarshal([]byte(pool.String), &e.CasePool); err != nil {
			return nil, fmt.Errorf("failed to decode case pool of %s: %w", e.ExperimentID, err)
		}
	}
	e.CreatedAt = util.ParseTime(createdAt)
	e.UpdatedAt = util.ParseTime(updatedAt)
	return &e, nil
}

func encodeCasePool(pool []int64) (sql.NullString, error) {
	if pool == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(pool)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode case pool: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
