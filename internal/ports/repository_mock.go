package ports

import (
	"context"
	"time"

	"github.com/emiliopalmerini/caseconf/internal/domain"
)

// MockExperimentRepository is a mock implementation of ExperimentRepository for testing.
type MockExperimentRepository struct {
	CreateFunc       func(ctx context.Context, experiment *domain.Experiment) error
	GetByIDFunc      func(ctx context.Context, experimentID string) (*domain.Experiment, error)
	ListFunc         func(ctx context.Context, opts ListExperimentsOptions) ([]*domain.Experiment, error)
	UpdateStatusFunc func(ctx context.Context, experimentID string, status domain.ExperimentStatus, updatedAt time.Time) error
}

func (m *MockExperimentRepository) Create(ctx context.Context, experiment *domain.Experiment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, experiment)
	}
	return nil
}

func (m *MockExperimentRepository) GetByID(ctx context.Context, experimentID string) (*domain.Experiment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, experimentID)
	}
	return nil, nil
}

func (m *MockExperimentRepository) List(ctx context.Context, opts ListExperimentsOptions) ([]*domain.Experiment, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, opts)
	}
	return []*domain.Experiment{}, nil
}

func (m *MockExperimentRepository) UpdateStatus(ctx context.Context, experimentID string, status domain.ExperimentStatus, updatedAt time.Time) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, experimentID, status, updatedAt)
	}
	return nil
}

// MockRlRunRepository is a mock implementation of RlRunRepository for testing.
type MockRlRunRepository struct {
	CreateFunc           func(ctx context.Context, run *domain.RlRun) error
	GetByIDFunc          func(ctx context.Context, id int64) (*domain.RlRun, error)
	ListByExperimentFunc func(ctx context.Context, experimentID string) ([]*domain.RlRun, error)
	UpdateFunc           func(ctx context.Context, run *domain.RlRun, from domain.RunStatus) error
}

func (m *MockRlRunRepository) Create(ctx context.Context, run *domain.RlRun) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, run)
	}
	return nil
}

func (m *MockRlRunRepository) GetByID(ctx context.Context, id int64) (*domain.RlRun, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockRlRunRepository) ListByExperiment(ctx context.Context, experimentID string) ([]*domain.RlRun, error) {
	if m.ListByExperimentFunc != nil {
		return m.ListByExperimentFunc(ctx, experimentID)
	}
	return []*domain.RlRun{}, nil
}

func (m *MockRlRunRepository) Update(ctx context.Context, run *domain.RlRun, from domain.RunStatus) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, run, from)
	}
	return nil
}

// MockDisplayConfigRepository is a mock implementation of DisplayConfigRepository for testing.
type MockDisplayConfigRepository struct {
	BeginFunc func(ctx context.Context) (ConfigBatch, error)
	GetFunc   func(ctx context.Context, id string) (*domain.DisplayConfiguration, error)
	ListFunc  func(ctx context.Context, opts ListConfigsOptions) ([]*domain.DisplayConfiguration, error)
}

func (m *MockDisplayConfigRepository) Begin(ctx context.Context) (ConfigBatch, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockConfigBatch{}, nil
}

func (m *MockDisplayConfigRepository) Get(ctx context.Context, id string) (*domain.DisplayConfiguration, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockDisplayConfigRepository) List(ctx context.Context, opts ListConfigsOptions) ([]*domain.DisplayConfiguration, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, opts)
	}
	return []*domain.DisplayConfiguration{}, nil
}

// MockConfigBatch is a mock implementation of ConfigBatch for testing.
// It records what was staged and whether the batch was finished.
type MockConfigBatch struct {
	StageFunc    func(ctx context.Context, cfg *domain.DisplayConfiguration) (bool, error)
	GetFunc      func(ctx context.Context, id string) (*domain.DisplayConfiguration, error)
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error

	Staged     []domain.DisplayConfiguration
	Committed  bool
	RolledBack bool
}

func (m *MockConfigBatch) Stage(ctx context.Context, cfg *domain.DisplayConfiguration) (bool, error) {
	if m.StageFunc != nil {
		inserted, err := m.StageFunc(ctx, cfg)
		if err == nil {
			m.Staged = append(m.Staged, *cfg)
		}
		return inserted, err
	}
	m.Staged = append(m.Staged, *cfg)
	return true, nil
}

// Get returns the first staged configuration with the given ID unless GetFunc is set.
func (m *MockConfigBatch) Get(ctx context.Context, id string) (*domain.DisplayConfiguration, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	for _, cfg := range m.Staged {
		if cfg.ID == id {
			found := cfg
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MockConfigBatch) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		if err := m.CommitFunc(ctx); err != nil {
			return err
		}
	}
	m.Committed = true
	return nil
}

func (m *MockConfigBatch) Rollback(ctx context.Context) error {
	if m.Committed {
		return nil
	}
	m.RolledBack = true
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}
