package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/infrastructure/database"
	"github.com/emiliopalmerini/caseconf/internal/util"
)

type RlRunRepository struct {
	db *sql.DB
}

func NewRlRunRepository(db *sql.DB) *RlRunRepository {
	return &RlRunRepository{db: db}
}

const runColumns = `id, experiment_id, model_version, status, triggered_by, configs_generated,
	answers_consumed, created_at, started_at, completed_at, run_params`

// Create inserts the run and sets its generated ID.
func (r *RlRunRepository) Create(ctx context.Context, run *domain.RlRun) error {
	params, err := encodeParams(run.RunParams)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO rl_run (experiment_id, model_version, status, triggered_by, configs_generated,
			answers_consumed, created_at, started_at, completed_at, run_params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ExperimentID,
		util.NullStringPtr(run.ModelVersion),
		string(run.Status),
		run.TriggeredBy,
		util.NullInt64(run.ConfigsGenerated),
		util.NullInt64(run.AnswersConsumed),
		util.FormatTime(run.CreatedAt),
		util.NullTimePtr(run.StartedAt),
		util.NullTimePtr(run.CompletedAt),
		params,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}
	run.ID = id
	return nil
}

func (r *RlRunRepository) GetByID(ctx context.Context, id int64) (*domain.RlRun, error) {
	return database.WithRetry(ctx, readRetries, func() (*domain.RlRun, error) {
		row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM rl_run WHERE id = ?`, id)
		run, err := scanRun(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get run: %w", err)
		}
		return run, nil
	})
}

// ListByExperiment returns the experiment's runs, newest first.
func (r *RlRunRepository) ListByExperiment(ctx context.Context, experimentID string) ([]*domain.RlRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM rl_run WHERE experiment_id = ? ORDER BY created_at DESC, id DESC`, experimentID)
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

// Update writes the mutable fields of a run if it is still in status from.
// The experiment is never reassigned.
func (r *RlRunRepository) Update(ctx context.Context, run *domain.RlRun, from domain.RunStatus) error {
	params, err := encodeParams(run.RunParams)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE rl_run SET model_version = ?, status = ?, configs_generated = ?, answers_consumed = ?,
			started_at = ?, completed_at = ?, run_params = ?
		WHERE id = ? AND status = ?`,
		util.NullStringPtr(run.ModelVersion),
		string(run.Status),
		util.NullInt64(run.ConfigsGenerated),
		util.NullInt64(run.AnswersConsumed),
		util.NullTimePtr(run.StartedAt),
		util.NullTimePtr(run.CompletedAt),
		params,
		run.ID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return domain.StaleRunError(run.ID, from)
	}
	return nil
}

func scanRun(s rowScanner) (*domain.RlRun, error) {
	var (
		run                    domain.RlRun
		modelVersion, params   sql.NullString
		startedAt, completedAt sql.NullString
		generated, consumed    sql.NullInt64
		status, createdAt      string
	)
	err := s.Scan(&run.ID, &run.ExperimentID, &modelVersion, &status, &run.TriggeredBy, &generated,
		&consumed, &createdAt, &startedAt, &completedAt, &params)
	if err != nil {
		return nil, err
	}

	run.ModelVersion = util.NullStringToPtr(modelVersion)
	run.Status = domain.RunStatus(status)
	run.ConfigsGenerated = util.NullInt64ToPtr(generated)
	run.AnswersConsumed = util.NullInt64ToPtr(consumed)
	run.CreatedAt = util.ParseTime(createdAt)
	run.StartedAt = util.NullStringToTime(startedAt)
	run.CompletedAt = util.NullStringToTime(completedAt)
	if params.Valid {
		if err := json.Unmarshal([]byte(params.String), &run.RunParams); err != nil {
			return nil, fmt.Errorf("failed to decode run params of run %d: %w", run.ID, err)
		}
	}
	return &run, nil
}

func encodeParams(p map[string]any) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode run params: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
