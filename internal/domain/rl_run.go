package domain

import "time"

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// runTransitions lists the allowed moves. Completed and failed are terminal.
var runTransitions = map[RunStatus][]RunStatus{
	RunPending: {RunRunning, RunFailed},
	RunRunning: {RunCompleted, RunFailed},
}

// RlRun is one execution of a config-generation process for an experiment.
type RlRun struct {
	ID               int64          `json:"id"`
	ExperimentID     string         `json:"experiment_id"`
	ModelVersion     *string        `json:"model_version"`
	Status           RunStatus      `json:"status"`
	TriggeredBy      string         `json:"triggered_by"`
	ConfigsGenerated *int64         `json:"configs_generated"`
	AnswersConsumed  *int64         `json:"answers_consumed"`
	CreatedAt        time.Time      `json:"created_at"`
	StartedAt        *time.Time     `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at"`
	RunParams        map[string]any `json:"run_params"`
}

// CanTransition reports whether the run may move to the given status.
func (r *RlRun) CanTransition(to RunStatus) bool {
	for _, s := range runTransitions[r.Status] {
		if s == to {
			return true
		}
	}
	return false
}

// StaleRunError reports that run id left status from before an update landed.
func StaleRunError(id int64, from RunStatus) error {
	return NewError(KindInvalidRunTransition, "Run %d is no longer '%s'", id, from)
}

// Transition moves the run to a new status and stamps the matching timestamp.
func (r *RlRun) Transition(to RunStatus, now time.Time) error {
	if !r.CanTransition(to) {
		return NewError(KindInvalidRunTransition,
			"Cannot move run %d from '%s' to '%s'", r.ID, r.Status, to)
	}
	switch to {
	case RunRunning:
		r.StartedAt = &now
	case RunCompleted, RunFailed:
		r.CompletedAt = &now
	}
	r.Status = to
	return nil
}
