// Package output renders query results for the terminal (lipgloss) or as
// JSON lines.
package output

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
)

var (
	colorWhite  = lipgloss.Color("#FAFAFA")
	colorGray   = lipgloss.Color("#888888")
	colorBlue   = lipgloss.Color("#5B9BD5")
	colorGreen  = lipgloss.Color("#6BCB77")
	colorYellow = lipgloss.Color("#FFD93D")
	colorOrange = lipgloss.Color("#FFA54F")
)

var (
	dateStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	sourceStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	textStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	headingStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	uncertainStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	eventStyle = lipgloss.NewStyle().
			Foreground(colorOrange)
)

// eventIcon returns the marker printed in front of a notification.
func eventIcon(kind string) string {
	switch kind {
	case events.KindHeuristicsRefreshed:
		return "↻"
	case events.KindLogFilesChanged:
		return "✎"
	default:
		return "•"
	}
}
