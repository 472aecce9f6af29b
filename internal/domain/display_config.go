package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PathEntry styles one dot-delimited section address, e.g. "BACKGROUND.Social History.Smoke".
type PathEntry struct {
	Path  string    `json:"path"`
	Style PathStyle `json:"style"`
}

// Depth is the number of dot-delimited segments in the path.
func (p PathEntry) Depth() int {
	return strings.Count(p.Path, ".") + 1
}

// Validate enforces that an ordering weight is only set below a top-level category.
func (p PathEntry) Validate() error {
	if p.Style.Top != nil && p.Depth() < 2 {
		return &Error{Kind: KindInvalidCSV, Message: MsgInvalidCSV,
			Err: NewError(KindInvalidCSV, "top set on root category %q", p.Path)}
	}
	return nil
}

// DisplayConfiguration is the per-user, per-case display tree.
type DisplayConfiguration struct {
	ID           string      `json:"id"`
	UserEmail    string      `json:"user_email"`
	CaseID       int64       `json:"case_id"`
	PathConfig   []PathEntry `json:"path_config"`
	ExperimentID *string     `json:"experiment_id"`
	RlRunID      *int64      `json:"rl_run_id"`
	Arm          *string     `json:"arm"`
}

// Tags qualify a configuration with experiment identity.
type Tags struct {
	ExperimentID *string
	RlRunID      *int64
	Arm          *string
}

// IsZero reports whether no tag is set.
func (t Tags) IsZero() bool {
	return t.ExperimentID == nil && t.RlRunID == nil && t.Arm == nil
}

// Tags returns the experiment identity of the configuration.
func (c DisplayConfiguration) Tags() Tags {
	return Tags{ExperimentID: c.ExperimentID, RlRunID: c.RlRunID, Arm: c.Arm}
}

// WithTags returns a copy carrying the given tags and an identity derived from them.
// The receiver is left untouched.
func (c DisplayConfiguration) WithTags(t Tags) DisplayConfiguration {
	out := c
	out.PathConfig = append([]PathEntry(nil), c.PathConfig...)
	out.ExperimentID = t.ExperimentID
	out.RlRunID = t.RlRunID
	out.Arm = t.Arm
	out.ID = DeriveConfigID(c.UserEmail, c.CaseID, t)
	return out
}

// SameContent reports whether o stores exactly what c stores.
// A nil and an empty path config are the same.
func (c DisplayConfiguration) SameContent(o DisplayConfiguration) bool {
	return c.ID == o.ID &&
		c.UserEmail == o.UserEmail &&
		c.CaseID == o.CaseID &&
		equalPtr(c.ExperimentID, o.ExperimentID) &&
		equalPtr(c.RlRunID, o.RlRunID) &&
		equalPtr(c.Arm, o.Arm) &&
		slices.EqualFunc(c.PathConfig, o.PathConfig, func(a, b PathEntry) bool {
			return a.Path == b.Path &&
				a.Style.Collapse == b.Style.Collapse &&
				a.Style.Highlight == b.Style.Highlight &&
				equalPtr(a.Style.Top, b.Style.Top)
		})
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DeriveConfigID builds the stable identity key of a configuration.
// Unscoped configurations use "<email>-<case>"; tagged ones append
// "-<experiment>-<arm>-<run>" with empty parts for missing tags.
func DeriveConfigID(userEmail string, caseID int64, t Tags) string {
	base := fmt.Sprintf("%s-%d", userEmail, caseID)
	if t.IsZero() {
		return base
	}
	run := ""
	if t.RlRunID != nil {
		run = strconv.FormatInt(*t.RlRunID, 10)
	}
	return fmt.Sprintf("%s-%s-%s-%s", base, deref(t.ExperimentID), deref(t.Arm), run)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
