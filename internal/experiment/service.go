// Package experiment implements the experiment and RL run lifecycle on top
// of the repository ports.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/logging"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

const defaultTriggeredBy = "manual"

// Service governs experiment status and the runs spawned from experiments.
type Service struct {
	experiments ports.ExperimentRepository
	runs        ports.RlRunRepository
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the experiment id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func NewService(experiments ports.ExperimentRepository, runs ports.RlRunRepository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		experiments: experiments,
		runs:        runs,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       NewExperimentID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewExperimentID returns "exp-" followed by 12 hex characters of a random UUID.
func NewExperimentID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "exp-" + hex[:12]
}

type CreateExperimentInput struct {
	Name        string       `json:"name" yaml:"name"`
	Description *string      `json:"description,omitempty" yaml:"description,omitempty"`
	Arms        []domain.Arm `json:"arms" yaml:"arms"`
	CasePool    []int64      `json:"case_pool,omitempty" yaml:"case_pool,omitempty"`
}

// ExperimentDetail is an experiment with its runs, newest first.
type ExperimentDetail struct {
	*domain.Experiment
	Runs []*domain.RlRun `json:"runs"`
}

type CreateRunInput struct {
	TriggeredBy  string         `json:"triggered_by,omitempty"`
	ModelVersion *string        `json:"model_version,omitempty"`
	RunParams    map[string]any `json:"run_params,omitempty"`
}

type RunCompletion struct {
	ConfigsGenerated *int64 `json:"configs_generated,omitempty"`
	AnswersConsumed  *int64 `json:"answers_consumed,omitempty"`
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *Service) CreateExperiment(ctx context.Context, in CreateExperimentInput) (*domain.Experiment, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "'name' and 'arms' are required")
	}
	if err := domain.ValidateArms(in.Arms); err != nil {
		return nil, err
	}

	now := s.now()
	exp := &domain.Experiment{
		ExperimentID: s.newID(),
		Name:         name,
		Description:  in.Description,
		Status:       domain.ExperimentActive,
		Arms:         in.Arms,
		CasePool:     in.CasePool,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.experiments.Create(ctx, exp); err != nil {
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "experiment created",
		"experiment_id", exp.ExperimentID, "name", exp.Name, "arms", len(exp.Arms))
	return exp, nil
}

// Lookup returns the experiment or a KindExperimentNotFound error.
func (s *Service) Lookup(ctx context.Context, experimentID string) (*domain.Experiment, error) {
	exp, err := s.experiments.GetByID(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	if exp == nil {
		return nil, notFound(experimentID)
	}
	return exp, nil
}

func (s *Service) GetExperiment(ctx context.Context, experimentID string) (*ExperimentDetail, error) {
	exp, err := s.Lookup(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	runs, err := s.runs.ListByExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return &ExperimentDetail{Experiment: exp, Runs: runs}, nil
}

// ListExperiments returns experiments newest first. An empty status lists all;
// an unknown status matches nothing.
func (s *Service) ListExperiments(ctx context.Context, status string) ([]*domain.Experiment, error) {
	var opts ports.ListExperimentsOptions
	if status != "" {
		st, err := domain.ParseExperimentStatus(status)
		if err != nil {
			// No experiment can carry an unknown status.
			return []*domain.Experiment{}, nil
		}
		opts.Status = &st
	}
	exps, err := s.experiments.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	return exps, nil
}

// UpdateExperimentStatus overwrites the status. The value is validated before
// storage is touched. Concurrent updates are last-write-wins.
func (s *Service) UpdateExperimentStatus(ctx context.Context, experimentID, status string) (*domain.Experiment, error) {
	st, err := domain.ParseExperimentStatus(status)
	if err != nil {
		return nil, err
	}
	exp, err := s.Lookup(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	previous := exp.Status
	exp.Status = st
	exp.UpdatedAt = s.now()
	if err := s.experiments.UpdateStatus(ctx, experimentID, st, exp.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update experiment status: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "experiment status updated",
		"experiment_id", experimentID, "from", string(previous), "to", string(st))
	return exp, nil
}

// CreateRun spawns a pending run. Only active experiments accept runs.
func (s *Service) CreateRun(ctx context.Context, experimentID string, in CreateRunInput) (*domain.RlRun, error) {
	exp, err := s.Lookup(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if !exp.AcceptsRuns() {
		return nil, domain.NewError(domain.KindInvalidExperimentState,
			"Cannot create run for experiment in '%s' status", exp.Status)
	}

	triggeredBy := strings.TrimSpace(in.TriggeredBy)
	if triggeredBy == "" {
		triggeredBy = defaultTriggeredBy
	}
	run := &domain.RlRun{
		ExperimentID: experimentID,
		ModelVersion: in.ModelVersion,
		Status:       domain.RunPending,
		TriggeredBy:  triggeredBy,
		CreatedAt:    s.now(),
		RunParams:    in.RunParams,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "run created",
		"experiment_id", experimentID, "run_id", run.ID, "triggered_by", triggeredBy)
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, experimentID string) ([]*domain.RlRun, error) {
	if _, err := s.Lookup(ctx, experimentID); err != nil {
		return nil, err
	}
	runs, err := s.runs.ListByExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run or a KindRunNotFound error.
func (s *Service) GetRun(ctx context.Context, runID int64) (*domain.RlRun, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, domain.NewError(domain.KindRunNotFound, "Run '%d' not found", runID)
	}
	return run, nil
}

// StartRun moves a pending run to running.
func (s *Service) StartRun(ctx context.Context, runID int64, modelVersion *string) (*domain.RlRun, error) {
	return s.transition(ctx, runID, domain.RunRunning, func(r *domain.RlRun) {
		if modelVersion != nil {
			r.ModelVersion = modelVersion
		}
	})
}

// CompleteRun moves a running run to completed and records its counters.
func (s *Service) CompleteRun(ctx context.Context, runID int64, c RunCompletion) (*domain.RlRun, error) {
	return s.transition(ctx, runID, domain.RunCompleted, func(r *domain.RlRun) {
		if c.ConfigsGenerated != nil {
			r.ConfigsGenerated = c.ConfigsGenerated
		}
		if c.AnswersConsumed != nil {
			r.AnswersConsumed = c.AnswersConsumed
		}
	})
}

// FailRun moves a pending or running run to failed.
func (s *Service) FailRun(ctx context.Context, runID int64) (*domain.RlRun, error) {
	return s.transition(ctx, runID, domain.RunFailed, nil)
}

func (s *Service) transition(ctx context.Context, runID int64, to domain.RunStatus, apply func(*domain.RlRun)) (*domain.RlRun, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	from := run.Status
	if err := run.Transition(to, s.now()); err != nil {
		return nil, err
	}
	if apply != nil {
		apply(run)
	}
	if err := s.runs.Update(ctx, run, from); err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "run transitioned",
		"run_id", runID, "experiment_id", run.ExperimentID, "from", string(from), "to", string(to))
	return run, nil
}

func notFound(experimentID string) error {
	return domain.NewError(domain.KindExperimentNotFound, "Experiment '%s' not found", experimentID)
}
