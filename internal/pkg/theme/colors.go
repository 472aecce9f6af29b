package theme

import "github.com/charmbracelet/lipgloss"

var (
	Purple    = lipgloss.Color("#A855F7")
	LightGray = lipgloss.Color("#9CA3AF")
	DimGray   = lipgloss.Color("#6B7280")

	Success = lipgloss.Color("#22C55E")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Info    = lipgloss.Color("#3B82F6")
	Cyan    = lipgloss.Color("#06B6D4")
)
