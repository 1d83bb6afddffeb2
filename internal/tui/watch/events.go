package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/holdline/internal/events"
)

const shownEvents = 8

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= shownEvents {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.JobCompleted, events.AgentDone:
		typeStyle = theme.StatusDone
	case events.JobFailed, events.AgentError:
		typeStyle = theme.StatusError
	case events.JobPending, events.AgentRunning:
		typeStyle = theme.StatusPending
	case events.JobSubmitted:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-15s", e.Type)), extractEventDesc(e))
}

func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if jobID, ok := data["job_id"].(string); ok {
		parts = append(parts, fmt.Sprintf("[%s]", shortID(jobID)))
	}
	if agentID, ok := data["agent_id"].(string); ok {
		parts = append(parts, fmt.Sprintf("[%s]", clip(agentID, 17)))
	}
	if status, ok := data["status"].(string); ok {
		parts = append(parts, status)
	}
	if reason, ok := data["reason"].(string); ok {
		parts = append(parts, reason)
	}
	for _, key := range []string{"query", "task"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, fmt.Sprintf("%q", clip(v, 40)))
		}
	}

	if len(parts) == 0 {
		return clip(string(e.Data), 60)
	}
	return strings.Join(parts, " ")
}
