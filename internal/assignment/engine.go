// Package assignment applies display configurations to the store in
// batches, isolating per-item failures and committing once.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/logging"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

const (
	StatusAdded  = "added"
	StatusFailed = "failed"
)

const msgMissingIdentity = "user_email and case_id required"

// Request is one configuration to assign. Missing user_email or case_id
// fails the item, not the batch.
type Request struct {
	ID           *string            `json:"id,omitempty"`
	UserEmail    string             `json:"user_email"`
	CaseID       *int64             `json:"case_id"`
	PathConfig   []domain.PathEntry `json:"path_config,omitempty"`
	ExperimentID *string            `json:"experiment_id,omitempty"`
	RlRunID      *int64             `json:"rl_run_id,omitempty"`
	Arm          *string            `json:"arm,omitempty"`
}

func (r Request) tags() domain.Tags {
	return domain.Tags{ExperimentID: r.ExperimentID, RlRunID: r.RlRunID, Arm: r.Arm}
}

// Outcome reports what happened to one request.
type Outcome struct {
	Status    string      `json:"status"`
	UserEmail string      `json:"user_email,omitempty"`
	CaseID    *int64      `json:"case_id,omitempty"`
	ID        string      `json:"id,omitempty"`
	Error     string      `json:"error,omitempty"`
	Kind      domain.Kind `json:"-"`
}

// BatchResult holds one outcome per request, in request order.
type BatchResult struct {
	Results []Outcome `json:"results"`
	Total   int       `json:"total"`
}

// Counts returns how many items were added and how many failed.
func (b *BatchResult) Counts() (added, failed int) {
	for _, o := range b.Results {
		if o.Status == StatusAdded {
			added++
		} else {
			failed++
		}
	}
	return added, failed
}

// Engine applies assignment batches.
type Engine struct {
	experiments ports.ExperimentRepository
	runs        ports.RlRunRepository
	configs     ports.DisplayConfigRepository
	metrics     ports.MetricsExporter
	logger      *slog.Logger
}

func NewEngine(
	experiments ports.ExperimentRepository,
	runs ports.RlRunRepository,
	configs ports.DisplayConfigRepository,
	metrics ports.MetricsExporter,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		experiments: experiments,
		runs:        runs,
		configs:     configs,
		metrics:     metrics,
		logger:      logger,
	}
}

type staged struct {
	index int
	cfg   domain.DisplayConfiguration
}

// ApplyBatch validates every request, stages the survivors in one unit of
// work and commits once. A failed commit returns a KindBatchCommit error and
// no result, since nothing from the batch became visible.
func (e *Engine) ApplyBatch(ctx context.Context, items []Request) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, domain.NewError(domain.KindInvalidRequest, "'configs' must be a non-empty array")
	}
	start := time.Now()
	log := logging.FromContext(ctx, e.logger)

	result := &BatchResult{Results: make([]Outcome, len(items)), Total: len(items)}
	check := newChecker(e.experiments, e.runs)

	var pending []staged
	for i, item := range items {
		cfg, err := check.prepare(ctx, item)
		if err != nil {
			if domain.KindOf(err) == domain.KindUnknown {
				return nil, err
			}
			result.Results[i] = failed(item, err)
			continue
		}
		pending = append(pending, staged{index: i, cfg: cfg})
	}

	if len(pending) > 0 {
		if err := e.stageAll(ctx, log, pending, result); err != nil {
			e.record(ctx, items, result, true, start)
			return nil, err
		}
	}

	added, failedCount := result.Counts()
	log.InfoContext(ctx, "assignment batch applied",
		"total", result.Total, "added", added, "failed", failedCount)
	e.record(ctx, items, result, false, start)
	return result, nil
}

func (e *Engine) stageAll(ctx context.Context, log *slog.Logger, pending []staged, result *BatchResult) error {
	batch, err := e.configs.Begin(ctx)
	if err != nil {
		return &domain.Error{Kind: domain.KindBatchCommit, Message: "Could not open configuration batch", Err: err}
	}
	defer func() { _ = batch.Rollback(ctx) }()

	for _, p := range pending {
		cfg := p.cfg
		inserted, err := batch.Stage(ctx, &cfg)
		if err != nil {
			log.WarnContext(ctx, "staging configuration failed",
				"id", cfg.ID, "user_email", cfg.UserEmail, "case_id", cfg.CaseID, "error", err)
			result.Results[p.index] = Outcome{
				Status:    StatusFailed,
				UserEmail: cfg.UserEmail,
				CaseID:    &cfg.CaseID,
				ID:        cfg.ID,
				Error:     "Could not store configuration",
				Kind:      domain.KindAssignmentRejected,
			}
			continue
		}
		if !inserted {
			if err := sameAsStored(ctx, batch, cfg); err != nil {
				log.WarnContext(ctx, "configuration conflicts with stored one", "id", cfg.ID, "error", err)
				result.Results[p.index] = Outcome{
					Status:    StatusFailed,
					UserEmail: cfg.UserEmail,
					CaseID:    &cfg.CaseID,
					ID:        cfg.ID,
					Error:     domain.MessageOf(err),
					Kind:      domain.KindOf(err),
				}
				continue
			}
			log.DebugContext(ctx, "configuration already present", "id", cfg.ID)
		}
		result.Results[p.index] = Outcome{
			Status:    StatusAdded,
			UserEmail: cfg.UserEmail,
			CaseID:    &cfg.CaseID,
			ID:        cfg.ID,
		}
	}

	if err := batch.Commit(ctx); err != nil {
		log.ErrorContext(ctx, "assignment batch commit failed", "staged", len(pending), "error", err)
		return &domain.Error{Kind: domain.KindBatchCommit, Message: "Batch commit failed", Err: err}
	}
	return nil
}

// sameAsStored accepts a configuration whose ID is already taken only when
// the stored row has identical content.
func sameAsStored(ctx context.Context, batch ports.ConfigBatch, cfg domain.DisplayConfiguration) error {
	stored, err := batch.Get(ctx, cfg.ID)
	if err != nil {
		return &domain.Error{Kind: domain.KindAssignmentRejected, Message: "Could not store configuration", Err: err}
	}
	if stored == nil || !stored.SameContent(cfg) {
		return domain.NewError(domain.KindAssignmentRejected,
			"Configuration '%s' already exists with different content", cfg.ID)
	}
	return nil
}

func (e *Engine) record(ctx context.Context, items []Request, result *BatchResult, commitFailed bool, start time.Time) {
	if e.metrics == nil {
		return
	}
	m := &ports.BatchMetrics{
		ExperimentID: commonExperiment(items),
		Total:        len(items),
		CommitFailed: commitFailed,
		Duration:     time.Since(start),
	}
	if !commitFailed {
		m.Added, m.Failed = result.Counts()
	} else {
		m.Failed = len(items)
	}
	e.metrics.RecordBatch(ctx, m)
}

// ApplyCompiled tags compiled configurations and applies them as one batch.
// The inputs are not modified; tagged copies carry qualified ids.
func (e *Engine) ApplyCompiled(ctx context.Context, configs []domain.DisplayConfiguration, tags domain.Tags) (*BatchResult, error) {
	items := make([]Request, len(configs))
	for i, c := range configs {
		tagged := c
		if !tags.IsZero() {
			tagged = c.WithTags(tags)
		}
		items[i] = FromConfiguration(tagged)
	}
	return e.ApplyBatch(ctx, items)
}

// Seed applies configurations under their own ids. Applying the same
// configurations again leaves the store unchanged.
func (e *Engine) Seed(ctx context.Context, configs []domain.DisplayConfiguration) (*BatchResult, error) {
	items := make([]Request, len(configs))
	for i, c := range configs {
		items[i] = FromConfiguration(c)
	}
	return e.ApplyBatch(ctx, items)
}

// FromConfiguration builds a request that keeps the configuration's id and tags.
func FromConfiguration(c domain.DisplayConfiguration) Request {
	id := c.ID
	caseID := c.CaseID
	return Request{
		ID:           &id,
		UserEmail:    c.UserEmail,
		CaseID:       &caseID,
		PathConfig:   c.PathConfig,
		ExperimentID: c.ExperimentID,
		RlRunID:      c.RlRunID,
		Arm:          c.Arm,
	}
}

func failed(item Request, err error) Outcome {
	return Outcome{
		Status:    StatusFailed,
		UserEmail: strings.TrimSpace(item.UserEmail),
		CaseID:    item.CaseID,
		Error:     domain.MessageOf(err),
		Kind:      domain.KindOf(err),
	}
}

func commonExperiment(items []Request) *string {
	var id *string
	for _, it := range items {
		if it.ExperimentID == nil {
			continue
		}
		if id != nil && *id != *it.ExperimentID {
			return nil
		}
		id = it.ExperimentID
	}
	return id
}

// checker validates requests against lifecycle state. Lookups are cached
// for the lifetime of one batch.
type checker struct {
	experiments ports.ExperimentRepository
	runs        ports.RlRunRepository

	expCache map[string]*domain.Experiment
	runCache map[int64]*domain.RlRun
}

func newChecker(experiments ports.ExperimentRepository, runs ports.RlRunRepository) *checker {
	return &checker{
		experiments: experiments,
		runs:        runs,
		expCache:    make(map[string]*domain.Experiment),
		runCache:    make(map[int64]*domain.RlRun),
	}
}

// prepare turns a request into a configuration ready to stage. Classified
// errors fail the item; unclassified errors are store faults.
func (c *checker) prepare(ctx context.Context, item Request) (domain.DisplayConfiguration, error) {
	email := strings.TrimSpace(item.UserEmail)
	if email == "" || item.CaseID == nil {
		return domain.DisplayConfiguration{}, reject(msgMissingIdentity)
	}

	for _, entry := range item.PathConfig {
		if err := entry.Validate(); err != nil {
			return domain.DisplayConfiguration{}, &domain.Error{
				Kind: domain.KindAssignmentRejected, Message: fmt.Sprintf("Invalid path_config entry %q", entry.Path), Err: err}
		}
	}

	tags := item.tags()
	if err := c.crossCheck(ctx, *item.CaseID, tags); err != nil {
		return domain.DisplayConfiguration{}, err
	}

	cfg := domain.DisplayConfiguration{
		UserEmail:    email,
		CaseID:       *item.CaseID,
		PathConfig:   append([]domain.PathEntry{}, item.PathConfig...),
		ExperimentID: tags.ExperimentID,
		RlRunID:      tags.RlRunID,
		Arm:          tags.Arm,
	}
	if item.ID != nil && strings.TrimSpace(*item.ID) != "" {
		cfg.ID = *item.ID
	} else {
		cfg.ID = domain.DeriveConfigID(email, cfg.CaseID, tags)
	}
	return cfg, nil
}

func (c *checker) crossCheck(ctx context.Context, caseID int64, tags domain.Tags) error {
	if tags.ExperimentID == nil {
		if tags.Arm != nil || tags.RlRunID != nil {
			return reject("arm and rl_run_id require experiment_id")
		}
		return nil
	}

	exp, err := c.experiment(ctx, *tags.ExperimentID)
	if err != nil {
		return err
	}
	if exp == nil {
		return domain.NewError(domain.KindExperimentNotFound, "Experiment '%s' not found", *tags.ExperimentID)
	}
	if exp.Status != domain.ExperimentActive {
		return domain.NewError(domain.KindInvalidExperimentState,
			"Cannot assign configurations for experiment in '%s' status", exp.Status)
	}
	if tags.Arm != nil && !exp.HasArm(*tags.Arm) {
		return reject(fmt.Sprintf("Arm '%s' is not defined for experiment '%s'", *tags.Arm, exp.ExperimentID))
	}
	if !exp.AllowsCase(caseID) {
		return reject(fmt.Sprintf("Case %d is not in the case pool of experiment '%s'", caseID, exp.ExperimentID))
	}
	if tags.RlRunID != nil {
		run, err := c.run(ctx, *tags.RlRunID)
		if err != nil {
			return err
		}
		if run == nil {
			return domain.NewError(domain.KindRunNotFound, "Run '%d' not found", *tags.RlRunID)
		}
		if run.ExperimentID != exp.ExperimentID {
			return reject(fmt.Sprintf("Run %d does not belong to experiment '%s'", run.ID, exp.ExperimentID))
		}
	}
	return nil
}

func (c *checker) experiment(ctx context.Context, id string) (*domain.Experiment, error) {
	if exp, ok := c.expCache[id]; ok {
		return exp, nil
	}
	exp, err := c.experiments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	c.expCache[id] = exp
	return exp, nil
}

func (c *checker) run(ctx context.Context, id int64) (*domain.RlRun, error) {
	if run, ok := c.runCache[id]; ok {
		return run, nil
	}
	run, err := c.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	c.runCache[id] = run
	return run, nil
}

func reject(msg string) error {
	return &domain.Error{Kind: domain.KindAssignmentRejected, Message: msg}
}

// IsBatchFault reports whether err is a batch-level failure rather than a
// request validation error.
func IsBatchFault(err error) bool {
	return errors.Is(err, domain.ErrBatchCommit)
}
