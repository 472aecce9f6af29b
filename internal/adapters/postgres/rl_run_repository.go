package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/emiliopalmerini/caseconf/internal/domain"
)

type RlRunRepository struct {
	pool *pgxpool.Pool
}

func NewRlRunRepository(pool *pgxpool.Pool) *RlRunRepository {
	return &RlRunRepository{pool: pool}
}

const runColumns = `id, experiment_id, model_version, status, triggered_by, configs_generated,
	answers_consumed, created_at, started_at, completed_at, run_params`

// Create inserts the run and sets its generated ID.
func (r *RlRunRepository) Create(ctx context.Context, run *domain.RlRun) error {
	params, err := jsonOrNull(run.RunParams, run.RunParams == nil)
	if err != nil {
		return fmt.Errorf("failed to encode run params: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO rl_run (experiment_id, model_version, status, triggered_by, configs_generated,
			answers_consumed, created_at, started_at, completed_at, run_params)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		run.ExperimentID, run.ModelVersion, string(run.Status), run.TriggeredBy,
		run.ConfigsGenerated, run.AnswersConsumed, run.CreatedAt.UTC(),
		utcPtr(run.StartedAt), utcPtr(run.CompletedAt), params,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *RlRunRepository) GetByID(ctx context.Context, id int64) (*domain.RlRun, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM rl_run WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListByExperiment returns the experiment's runs, newest first.
func (r *RlRunRepository) ListByExperiment(ctx context.Context, experimentID string) ([]*domain.RlRun, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+runColumns+` FROM rl_run WHERE experiment_id = $1 ORDER BY created_at DESC, id DESC`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.RlRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *RlRunRepository) Update(ctx context.Context, run *domain.RlRun, from domain.RunStatus) error {
	params, err := jsonOrNull(run.RunParams, run.RunParams == nil)
	if err != nil {
		return fmt.Errorf("failed to encode run params: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE rl_run SET model_version = $1, status = $2, configs_generated = $3, answers_consumed = $4,
			started_at = $5, completed_at = $6, run_params = $7
		WHERE id = $8 AND status = $9`,
		run.ModelVersion, string(run.Status), run.ConfigsGenerated, run.AnswersConsumed,
		utcPtr(run.StartedAt), utcPtr(run.CompletedAt), params, run.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.StaleRunError(run.ID, from)
	}
	return nil
}

func scanRun(row pgx.Row) (*domain.RlRun, error) {
	var (
		run                    domain.RlRun
		status                 string
		params                 []byte
		startedAt, completedAt *time.Time
	)
	err := row.Scan(&run.ID, &run.ExperimentID, &run.ModelVersion, &status, &run.TriggeredBy,
		&run.ConfigsGenerated, &run.AnswersConsumed, &run.CreatedAt, &startedAt, &completedAt, &params)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	run.CreatedAt = run.CreatedAt.UTC()
	run.StartedAt = utcPtr(startedAt)
	run.CompletedAt = utcPtr(completedAt)
	if params != nil {
		if err := json.Unmarshal(params, &run.RunParams); err != nil {
			return nil, fmt.Errorf("failed to decode run params of run %d: %w", run.ID, err)
		}
	}
	return &run, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
