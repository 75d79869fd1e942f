// Package tui provides Bubble Tea views for the opcda CLI. Views are
// opt-in via --tui and show the same records the json and table output
// carry, nothing more.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent  = lipgloss.Color("#0EA5E9")
	good    = lipgloss.Color("#22C55E")
	suspect = lipgloss.Color("#EAB308")
	bad     = lipgloss.Color("#DC2626")
	muted   = lipgloss.Color("#9CA3AF")
	focus   = lipgloss.Color("#A78BFA")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9FAFB"))
	SuccessStyle = lipgloss.NewStyle().Foreground(good)
	WarningStyle = lipgloss.NewStyle().Foreground(suspect)
	ErrorStyle   = lipgloss.NewStyle().Foreground(bad)
	HelpStyle    = lipgloss.NewStyle().Foreground(muted).MarginTop(1)
	DetailStyle  = lipgloss.NewStyle().Foreground(focus)

	// BoxStyle frames the value table.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1)
)

// QualityStyle returns a style for a quality string such as "GOOD" or
// "UNCERTAIN (WAITING FOR INITIAL)".
func QualityStyle(quality string) lipgloss.Style {
	switch {
	case strings.HasPrefix(quality, "GOOD"):
		return SuccessStyle
	case strings.HasPrefix(quality, "UNCERTAIN"):
		return WarningStyle
	case strings.HasPrefix(quality, "BAD"):
		return ErrorStyle
	default:
		return ValueStyle
	}
}
