// Package watch implements the holdline system watch TUI: a live view of
// jobs and delegated agents fed by the coordinator's event stream.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme keeps the watch colours in one place.
type Theme struct {
	StatusDone    lipgloss.Style
	StatusPending lipgloss.Style
	StatusError   lipgloss.Style
	StatusAborted lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusPending: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusAborted: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

// StatusStyle picks the colour for a job or agent status.
func (t Theme) StatusStyle(status string) lipgloss.Style {
	switch status {
	case "done":
		return t.StatusDone
	case "pending", "running":
		return t.StatusPending
	case "error":
		return t.StatusError
	default:
		return t.StatusAborted
	}
}
