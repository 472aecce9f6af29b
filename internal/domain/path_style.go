package domain

import (
	"math"
	"strconv"
	"strings"
)

// PathStyle controls how one section of a case is displayed.
// Top is an ordering weight inside the parent section; nil keeps the default position.
type PathStyle struct {
	Collapse  bool     `json:"collapse"`
	Highlight bool     `json:"highlight"`
	Top       *float64 `json:"top"`
}

// ParseBoolCell parses a collapse/highlight cell. Empty means false.
func ParseBoolCell(raw string) (bool, error) {
	v := strings.TrimSpace(raw)
	switch {
	case v == "":
		return false, nil
	case strings.EqualFold(v, "true"):
		return true, nil
	case strings.EqualFold(v, "false"):
		return false, nil
	}
	return false, &Error{Kind: KindInvalidCSV, Message: MsgInvalidCSV,
		Err: NewError(KindInvalidCSV, "%q is not a boolean", v)}
}

// ParseTopCell parses a top cell. Empty means unordered (nil).
func ParseTopCell(raw string) (*float64, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &Error{Kind: KindInvalidCSV, Message: MsgInvalidCSV,
			Err: NewError(KindInvalidCSV, "%q is not a finite number", v)}
	}
	return &f, nil
}
