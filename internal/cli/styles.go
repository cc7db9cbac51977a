// Package cli provides styled terminal output using lipgloss.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// PrimaryColor is the main theme color.
	PrimaryColor = lipgloss.Color("#4ECDC4")
	// SuccessColor indicates accepted records.
	SuccessColor = lipgloss.Color("#4ECDC4")
	// WarningColor indicates ambiguous or low-confidence results.
	WarningColor = lipgloss.Color("#FFE66D")
	// ErrorColor indicates rejected records and failures.
	ErrorColor = lipgloss.Color("#FF6B6B")
	// SubtleColor indicates less prominent output.
	SubtleColor = lipgloss.Color("#666666")

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	// SuccessStyle formats accepted statuses.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// WarningStyle formats ambiguity warnings.
	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	// ErrorStyle formats rejections and errors.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	// SubtleStyle formats secondary details.
	SubtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	// TableHeaderStyle is used for table headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(lipgloss.Color("#333"))
)

// StatusStyle returns the style matching a validation status.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "VALID":
		return SuccessStyle
	case "DUPLICATE", "INVALID_ACCOUNT", "LOW_QUALITY":
		return ErrorStyle
	default:
		return WarningStyle
	}
}
