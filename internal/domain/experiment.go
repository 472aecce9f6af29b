package domain

import (
	"slices"
	"strings"
	"time"
)

type ExperimentStatus string

const (
	ExperimentActive    ExperimentStatus = "active"
	ExperimentPaused    ExperimentStatus = "paused"
	ExperimentCompleted ExperimentStatus = "completed"
	ExperimentArchived  ExperimentStatus = "archived"
)

// ExperimentStatuses lists the recognized statuses in sorted order.
var ExperimentStatuses = []ExperimentStatus{
	ExperimentActive,
	ExperimentArchived,
	ExperimentCompleted,
	ExperimentPaused,
}

// ParseExperimentStatus accepts only the four recognized statuses.
// Any recognized status may follow any other.
func ParseExperimentStatus(s string) (ExperimentStatus, error) {
	status := ExperimentStatus(s)
	if slices.Contains(ExperimentStatuses, status) {
		return status, nil
	}
	names := make([]string, len(ExperimentStatuses))
	for i, st := range ExperimentStatuses {
		names[i] = string(st)
	}
	return "", NewError(KindInvalidExperimentState,
		"Invalid status. Must be one of: %s", strings.Join(names, ", "))
}

// Arm is a treatment variant of an experiment.
type Arm struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Weight      *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

type Experiment struct {
	ExperimentID string           `json:"experiment_id"`
	Name         string           `json:"name"`
	Description  *string          `json:"description"`
	Status       ExperimentStatus `json:"status"`
	Arms         []Arm            `json:"arms"`
	CasePool     []int64          `json:"case_pool"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// AcceptsRuns reports whether new runs may be spawned.
func (e *Experiment) AcceptsRuns() bool {
	return e.Status == ExperimentActive
}

func (e *Experiment) HasArm(name string) bool {
	for _, a := range e.Arms {
		if a.Name == name {
			return true
		}
	}
	return false
}

// AllowsCase reports whether caseID is eligible. A nil pool is unrestricted.
func (e *Experiment) AllowsCase(caseID int64) bool {
	if e.CasePool == nil {
		return true
	}
	return slices.Contains(e.CasePool, caseID)
}

// ValidateArms requires at least one arm, each with a unique non-empty name.
func ValidateArms(arms []Arm) error {
	if len(arms) == 0 {
		return NewError(KindInvalidRequest, "'name' and 'arms' are required")
	}
	seen := make(map[string]struct{}, len(arms))
	for i, a := range arms {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return NewError(KindInvalidRequest, "arm %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return NewError(KindInvalidRequest, "duplicate arm %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
