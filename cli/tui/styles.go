// Package tui provides the Bubble Tea live monitor for the dsv4l2 CLI.
//
// The monitor is opt-in (--tui) and read-only: it renders runtime statistics
// and recent audit events, never device payloads.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for monitor components.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	statBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(18).
			Align(lipgloss.Center)

	statLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	statValueStyle = lipgloss.NewStyle().
			Bold(true).
			Align(lipgloss.Center)

	eventRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D1D5DB"))
)

// severityStyle maps an event severity name to a display style.
func severityStyle(severity string) lipgloss.Style {
	switch severity {
	case "CRITICAL", "HIGH":
		return lipgloss.NewStyle().Foreground(errorColor)
	case "MEDIUM":
		return lipgloss.NewStyle().Foreground(warningColor)
	case "INFO":
		return lipgloss.NewStyle().Foreground(successColor)
	default:
		return lipgloss.NewStyle().Foreground(mutedColor)
	}
}
