package turso

import (
	"database/sql"

	"github.com/emiliopalmerini/caseconf/internal/ports"
)

// Repositories holds all turso repository implementations as port interfaces.
type Repositories struct {
	Experiments ports.ExperimentRepository
	Runs        ports.RlRunRepository
	Configs     ports.DisplayConfigRepository
}

// NewRepositories creates all turso repository implementations from a database connection.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Experiments: NewExperimentRepository(db),
		Runs:        NewRlRunRepository(db),
		Configs:     NewDisplayConfigRepository(db),
	}
}
