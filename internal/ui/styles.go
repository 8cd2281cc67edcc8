package ui

import "github.com/charmbracelet/lipgloss"

// Single-accent palette.
const (
	colorAccent   = "39"  // deep sky blue
	colorGray     = "245" // labels, secondary text
	colorDarkGray = "238" // borders
	colorRed      = "196" // errors
)

// Styles holds the lipgloss styles for the interactive renderer.
type Styles struct {
	Header lipgloss.Style
	Stage  lipgloss.Style
	Active lipgloss.Style
	Label  lipgloss.Style
	Error  lipgloss.Style
	Panel  lipgloss.Style
}

// DefaultStyles returns the colored style set.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Stage:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Active: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Label:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorDarkGray)).
			Padding(0, 1),
	}
}

// NoColorStyles returns an unstyled set for NO_COLOR terminals.
func NoColorStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle(),
		Stage:  lipgloss.NewStyle(),
		Active: lipgloss.NewStyle(),
		Label:  lipgloss.NewStyle(),
		Error:  lipgloss.NewStyle(),
		Panel:  lipgloss.NewStyle(),
	}
}
