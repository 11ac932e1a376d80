// Package tui provides Bubble Tea views for the filegeek CLI.
//
// TUI rules:
//   - TUI is the default only when stdout is a TTY; --plain opts out
//   - TUI views render the same data as plain rendering, nothing extra
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/filegeek/filegeek-go/types"
)

// Color palette.
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray
)

// Styles for TUI components.
var (
	// TitleStyle for the question line and view headers.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// AnswerStyle for streamed answer text.
	AnswerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// MutedStyle for secondary detail lines.
	MutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// SuccessStyle for completed states.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for in-flight states.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for failures.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// HelpStyle for key hints.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// PhaseStyle returns the style for an indexing phase.
func PhaseStyle(p types.Phase) lipgloss.Style {
	switch {
	case p.Succeeded():
		return SuccessStyle
	case p == types.PhaseFailure:
		return ErrorStyle
	default:
		return WarningStyle
	}
}
