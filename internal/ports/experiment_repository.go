package ports

import (
	"context"
	"time"

	"github.com/emiliopalmerini/caseconf/internal/domain"
)

// ExperimentRepository persists experiments. Lookups return (nil, nil) when
// the experiment does not exist.
type ExperimentRepository interface {
	Create(ctx context.Context, experiment *domain.Experiment) error
	GetByID(ctx context.Context, experimentID string) (*domain.Experiment, error)
	List(ctx context.Context, opts ListExperimentsOptions) ([]*domain.Experiment, error)
	UpdateStatus(ctx context.Context, experimentID string, status domain.ExperimentStatus, updatedAt time.Time) error
}

type ListExperimentsOptions struct {
	Status *domain.ExperimentStatus
}

// RlRunRepository persists RL runs. Lookups return (nil, nil) when the run
// does not exist.
type RlRunRepository interface {
	Create(ctx context.Context, run *domain.RlRun) error
	GetByID(ctx context.Context, id int64) (*domain.RlRun, error)
	ListByExperiment(ctx context.Context, experimentID string) ([]*domain.RlRun, error)
	// Update writes the mutable fields of run only while its stored status is
	// still from. Otherwise it returns a KindInvalidRunTransition error.
	Update(ctx context.Context, run *domain.RlRun, from domain.RunStatus) error
}
