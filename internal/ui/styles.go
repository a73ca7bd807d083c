package ui

import "github.com/charmbracelet/lipgloss"

// Styles groups the lipgloss styles used by the shell views.
type Styles struct {
	Title   lipgloss.Style
	Subtle  lipgloss.Style
	Spinner lipgloss.Style
	Ready   lipgloss.Style
	Danger  lipgloss.Style
	LogOut  lipgloss.Style
	LogErr  lipgloss.Style
	Help    lipgloss.Style
	Frame   lipgloss.Style
}

// DefaultStyles returns the shell's color scheme.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7aa2f7")).
			Bold(true),
		Subtle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#565f89")),
		Spinner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bb9af7")),
		Ready: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9ece6a")).
			Bold(true),
		Danger: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f7768e")).
			Bold(true),
		LogOut: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0caf5")),
		LogErr: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e0af68")),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#565f89")).
			Italic(true),
		Frame: lipgloss.NewStyle().
			Padding(1, 2),
	}
}
