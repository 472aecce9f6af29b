package turso

import (
	"context"
	"fmt"

	"github.com/emiliopalmerini/caseconf/internal/infrastructure/config"
	"github.com/emiliopalmerini/caseconf/internal/infrastructure/database"
)

// NewDB opens the libSQL database described by cfg.
func NewDB(ctx context.Context, cfg config.Database) (*database.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("CASECONF_DATABASE_URL environment variable is required")
	}
	if !database.IsLocal(cfg.URL) && cfg.AuthToken == "" {
		return nil, fmt.Errorf("CASECONF_AUTH_TOKEN environment variable is required for remote databases")
	}

	db, err := database.New(ctx, cfg.URL, cfg.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
