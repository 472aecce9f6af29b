package domain

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the core can report.
type Kind int

const (
	KindUnknown Kind = iota

	// Structural: reject a whole compile.
	KindInvalidUserEmail
	KindInvalidCaseID
	KindInvalidCSV

	// Lifecycle: reject one lifecycle operation.
	KindExperimentNotFound
	KindInvalidExperimentState
	KindRunNotFound
	KindInvalidRunTransition

	// Request-level validation.
	KindInvalidRequest

	// Per-item assignment failure.
	KindAssignmentRejected

	// Final commit of a batch failed.
	KindBatchCommit
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	KindInvalidUserEmail:       "invalid_user_email",
	KindInvalidCaseID:          "invalid_case_id",
	KindInvalidCSV:             "invalid_csv",
	KindExperimentNotFound:     "experiment_not_found",
	KindInvalidExperimentState: "invalid_experiment_state",
	KindRunNotFound:            "run_not_found",
	KindInvalidRunTransition:   "invalid_run_transition",
	KindInvalidRequest:         "invalid_request",
	KindAssignmentRejected:     "assignment_rejected",
	KindBatchCommit:            "batch_commit_failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Messages reported for structural failures.
const (
	MsgInvalidUserEmail = "Invalid user email in config file."
	MsgInvalidCaseID    = "Invalid case id in config file."
	MsgInvalidCSV       = "Error while processing csv file, please check again."
)

// Error is a classified failure with a human-readable message.
// Row is the 1-based data row that caused a compile failure, or 0.
type Error struct {
	Kind    Kind
	Message string
	Row     int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Row > 0 {
		msg = fmt.Sprintf("row %d: %s", e.Row, msg)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidUserEmail       = &Error{Kind: KindInvalidUserEmail}
	ErrInvalidCaseID          = &Error{Kind: KindInvalidCaseID}
	ErrInvalidCSV             = &Error{Kind: KindInvalidCSV}
	ErrExperimentNotFound     = &Error{Kind: KindExperimentNotFound}
	ErrInvalidExperimentState = &Error{Kind: KindInvalidExperimentState}
	ErrRunNotFound            = &Error{Kind: KindRunNotFound}
	ErrInvalidRunTransition   = &Error{Kind: KindInvalidRunTransition}
	ErrInvalidRequest         = &Error{Kind: KindInvalidRequest}
	ErrAssignmentRejected     = &Error{Kind: KindAssignmentRejected}
	ErrBatchCommit            = &Error{Kind: KindBatchCommit}
)

// NewError builds a classified error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// MessageOf returns the message of the first *Error in err's chain, or err.Error().
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
