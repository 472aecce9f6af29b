package theme

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds the terminal styles used by command output.
type Styles struct {
	Title lipgloss.Style
	Muted lipgloss.Style
	Bold  lipgloss.Style
	Label lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
}

var (
	defaultStyles *Styles
	once          sync.Once
)

// Default returns the shared Styles instance.
func Default() *Styles {
	once.Do(func() {
		defaultStyles = newStyles()
	})
	return defaultStyles
}

func newStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(Purple),

		Muted: lipgloss.NewStyle().
			Foreground(DimGray),

		Bold: lipgloss.NewStyle().
			Bold(true),

		Label: lipgloss.NewStyle().
			Foreground(LightGray),

		Success: lipgloss.NewStyle().
			Foreground(Success),

		Warning: lipgloss.NewStyle().
			Foreground(Warning),

		Error: lipgloss.NewStyle().
			Foreground(Error),

		Info: lipgloss.NewStyle().
			Foreground(Info),
	}
}

// Status picks a style for an experiment, run or outcome status.
func (s *Styles) Status(status string) lipgloss.Style {
	switch status {
	case "active", "running", "added", "completed":
		return s.Success
	case "paused", "pending":
		return s.Warning
	case "failed":
		return s.Error
	case "archived":
		return s.Muted
	default:
		return s.Info
	}
}
