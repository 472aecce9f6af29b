package ports

import (
	"context"

	"github.com/emiliopalmerini/caseconf/internal/domain"
)

// DisplayConfigRepository stores compiled display configurations.
type DisplayConfigRepository interface {
	// Begin opens a unit of work. Nothing staged is visible until Commit.
	Begin(ctx context.Context) (ConfigBatch, error)
	Get(ctx context.Context, id string) (*domain.DisplayConfiguration, error)
	List(ctx context.Context, opts ListConfigsOptions) ([]*domain.DisplayConfiguration, error)
}

type ListConfigsOptions struct {
	UserEmail    *string
	ExperimentID *string
}

// ConfigBatch is a unit of work over display configurations.
type ConfigBatch interface {
	// Stage inserts cfg unless a configuration with the same ID exists.
	// A failed stage is undone on its own and leaves earlier stages intact.
	// inserted is false when the ID was already present.
	Stage(ctx context.Context, cfg *domain.DisplayConfiguration) (inserted bool, err error)
	// Get reads a configuration as the batch sees it, staged rows included.
	// It returns nil when the ID is unknown.
	Get(ctx context.Context, id string) (*domain.DisplayConfiguration, error)
	Commit(ctx context.Context) error
	// Rollback is a no-op after a successful Commit.
	Rollback(ctx context.Context) error
}
