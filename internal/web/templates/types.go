package templates

import "time"

// ExperimentRow is one line of the experiments overview.
type ExperimentRow struct {
	ExperimentID string
	Name         string
	Description  string
	Status       string
	Arms         []string
	CasePoolSize int // -1 when the pool is unrestricted
	CreatedAt    time.Time
}

type Overview struct {
	Experiments []ExperimentRow
	Filter      string
}
