package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary     = lipgloss.Color("#60A5FA")
	colorAccent      = lipgloss.Color("#A78BFA")
	colorMuted       = lipgloss.Color("#6B7280")
	colorSuccess     = lipgloss.Color("#4ADE80")
	colorWarning     = lipgloss.Color("#FACC15")
	colorDestructive = lipgloss.Color("#F87171")
)

type Styles struct {
	Title    lipgloss.Style
	Subtle   lipgloss.Style
	Value    lipgloss.Style
	Card     lipgloss.Style
	Key      lipgloss.Style
	Disabled lipgloss.Style
	Waiting  lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Subtle:   lipgloss.NewStyle().Foreground(colorMuted),
		Value:    lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Padding(0, 2),
		Card:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted).Padding(1, 4),
		Key:      lipgloss.NewStyle().Bold(true).Foreground(colorSuccess),
		Disabled: lipgloss.NewStyle().Foreground(colorMuted).Strikethrough(true),
		Waiting:  lipgloss.NewStyle().Foreground(colorWarning),
		Success:  lipgloss.NewStyle().Foreground(colorSuccess),
		Warning:  lipgloss.NewStyle().Foreground(colorWarning),
		Error:    lipgloss.NewStyle().Foreground(colorDestructive),
	}
}
