package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
)

var (
	colorWhite  = lipgloss.Color("#FAFAFA")
	colorGray   = lipgloss.Color("#888888")
	colorGreen  = lipgloss.Color("#6BCB77")
	colorOrange = lipgloss.Color("#FFA54F")
	colorBlue   = lipgloss.Color("#5B9BD5")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(lipgloss.Color("#2D2D2D")).
			Bold(true).
			Padding(0, 1)

	timeStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	refreshStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	changeStyle = lipgloss.NewStyle().
			Foreground(colorOrange)

	otherStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Padding(0, 1)
)

// styleFor picks the icon and colour of a notification line.
func styleFor(kind string) (string, lipgloss.Style) {
	switch kind {
	case events.KindHeuristicsRefreshed:
		return "↻", refreshStyle
	case events.KindLogFilesChanged:
		return "✎", changeStyle
	default:
		return "•", otherStyle
	}
}
