package util

import (
	"strconv"
	"time"
)

// FormatDateTime formats t as "2006-01-02 15:04", or "-" for the zero time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

// FormatDateTimePtr is FormatDateTime for optional timestamps.
func FormatDateTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return FormatDateTime(*t)
}

// Deref returns *s, or fallback when s is nil.
func Deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// FormatInt64Ptr renders an optional integer, or "-" when absent.
func FormatInt64Ptr(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}
