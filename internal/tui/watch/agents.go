package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/mattjoyce/holdline/internal/events"
)

const maxShownAgents = 5

// AgentState tracks one delegated task.
type AgentState struct {
	ID      string
	Task    string
	Status  string
	Updated time.Time
}

func updateAgentState(agents map[string]*AgentState, e events.Event) {
	var data struct {
		AgentID string `json:"agent_id"`
		ID      string `json:"id"`
		Task    string `json:"task"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return
	}
	id := data.AgentID
	if id == "" {
		id = data.ID
	}
	if id == "" {
		return
	}

	a, ok := agents[id]
	if !ok {
		a = &AgentState{ID: id, Status: "running"}
		agents[id] = a
	}
	if data.Task != "" {
		a.Task = data.Task
	}
	switch {
	case data.Status != "":
		a.Status = data.Status
	case e.Type == events.AgentDone:
		a.Status = "done"
	case e.Type == events.AgentError:
		a.Status = "error"
	}
	a.Updated = e.At
}

func renderAgents(agents map[string]*AgentState, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4
	if len(agents) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("AGENTS"),
			theme.Dim.Render("  No delegated tasks..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	ordered := make([]*AgentState, 0, len(agents))
	for _, a := range agents {
		ordered = append(ordered, a)
	}
	sortAgents(ordered)

	var lines []string
	for i, a := range ordered {
		if i >= maxShownAgents {
			lines = append(lines, theme.Dim.Render(fmt.Sprintf("… %d more", len(ordered)-maxShownAgents)))
			break
		}
		lines = append(lines, fmt.Sprintf("%s %-22s %s %s",
			theme.StatusStyle(a.Status).Render(fmt.Sprintf("%-7s", a.Status)),
			clip(a.ID, 22),
			clip(a.Task, 40),
			theme.Dim.Render(humanize.RelTime(a.Updated, now, "ago", "from now")),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("AGENTS"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

// sortAgents orders running tasks first, then most recently updated.
func sortAgents(agents []*AgentState) {
	sort.Slice(agents, func(i, j int) bool {
		ri, rj := agents[i].Status == "running", agents[j].Status == "running"
		if ri != rj {
			return ri
		}
		return agents[i].Updated.After(agents[j].Updated)
	})
}
