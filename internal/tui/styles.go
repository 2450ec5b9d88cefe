package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/loom/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("213"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("213"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	eventTypeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Width(24)
)

var statusStyles = map[models.Status]lipgloss.Style{
	models.StatusPending:       lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	models.StatusReady:         lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
	models.StatusRunning:       lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
	models.StatusWaitingReview: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	models.StatusWaitingInput:  lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
	models.StatusCompleted:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	models.StatusFailed:        lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	models.StatusCanceled:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	models.StatusPruned:        lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true),
}

// renderStatus colors a status label.
func renderStatus(s models.Status) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

// renderLogLine formats one event panel line.
func renderLogLine(entry LogEntry) string {
	ts := dimStyle.Render(entry.Timestamp.Format("15:04:05.000"))
	typ := eventTypeStyle.Render(string(entry.Type))
	return fmt.Sprintf("%s %s %s", ts, typ, entry.Detail)
}
