package watch

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/mattjoyce/holdline/internal/events"
	"github.com/mattjoyce/holdline/internal/jobstore"
)

const maxTrackedJobs = 50

// JobState tracks one submission seen on the event stream.
type JobState struct {
	ID          string
	Query       string
	Status      string
	Placeholder bool
	Truncated   bool
	Started     time.Time
	Ended       time.Time
}

func (j *JobState) terminal() bool {
	return jobstore.Status(j.Status).Terminal()
}

// updateJobState applies a job.* event. Events for unknown jobs create an
// entry so a watch attached mid-flight still shows them.
func updateJobState(jobs map[string]*JobState, e events.Event) {
	var data struct {
		JobID     string `json:"job_id"`
		Query     string `json:"query"`
		Status    string `json:"status"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || data.JobID == "" {
		return
	}

	job, ok := jobs[data.JobID]
	if !ok {
		job = &JobState{ID: data.JobID, Status: string(jobstore.StatusPending), Started: e.At}
		jobs[data.JobID] = job
	}

	switch e.Type {
	case events.JobSubmitted:
		job.Query = data.Query
		job.Started = e.At
	case events.JobPending:
		job.Placeholder = true
	case events.JobCompleted, events.JobFailed, events.JobAborted:
		job.Status = terminalStatus(e.Type, data.Status)
		job.Truncated = data.Truncated
		job.Ended = e.At
	}

	evictJobs(jobs, maxTrackedJobs)
}

func terminalStatus(eventType, status string) string {
	if status != "" {
		return status
	}
	switch eventType {
	case events.JobAborted:
		return string(jobstore.StatusAborted)
	case events.JobFailed:
		return string(jobstore.StatusError)
	default:
		return string(jobstore.StatusDone)
	}
}

// seedJobs loads jobs from the dashboard listing without overwriting newer
// state that arrived on the stream.
func seedJobs(jobs map[string]*JobState, list []jobstore.Job) {
	for _, j := range list {
		if _, ok := jobs[j.ID]; ok {
			continue
		}
		st := &JobState{
			ID:        j.ID,
			Query:     j.Query,
			Status:    string(j.Status),
			Truncated: j.Truncated,
			Started:   j.CreatedAt,
		}
		if j.CompletedAt != nil {
			st.Ended = *j.CompletedAt
		}
		jobs[j.ID] = st
	}
	evictJobs(jobs, maxTrackedJobs)
}

// evictJobs drops the oldest terminal jobs once more than limit are tracked.
func evictJobs(jobs map[string]*JobState, limit int) {
	if len(jobs) <= limit {
		return
	}
	ordered := sortedJobs(jobs)
	for i := len(ordered) - 1; i >= 0 && len(jobs) > limit; i-- {
		if ordered[i].terminal() {
			delete(jobs, ordered[i].ID)
		}
	}
}

// sortedJobs returns jobs newest first.
func sortedJobs(jobs map[string]*JobState) []*JobState {
	out := make([]*JobState, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Started.Equal(out[b].Started) {
			return out[a].ID > out[b].ID
		}
		return out[a].Started.After(out[b].Started)
	})
	return out
}

func newJobTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Job", Width: 12},
			{Title: "Query", Width: 40},
			{Title: "Status", Width: 8},
			{Title: "Started", Width: 16},
			{Title: "Took", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func jobRows(jobs map[string]*JobState, theme Theme, now time.Time) []table.Row {
	ordered := sortedJobs(jobs)
	rows := make([]table.Row, 0, len(ordered))
	for _, j := range ordered {
		rows = append(rows, table.Row{
			theme.StatusStyle(j.Status).Render(statusGlyph(j)),
			shortID(j.ID),
			clip(j.Query, 40),
			j.Status,
			humanize.RelTime(j.Started, now, "ago", "from now"),
			took(j, now),
		})
	}
	return rows
}

func statusGlyph(j *JobState) string {
	switch j.Status {
	case "done":
		if j.Truncated {
			return "◐"
		}
		return "●"
	case "error":
		return "∅"
	case "aborted":
		return "⊘"
	default:
		if j.Placeholder {
			return "◔"
		}
		return "○"
	}
}

func took(j *JobState, now time.Time) string {
	end := j.Ended
	if end.IsZero() {
		end = now
	}
	if j.Started.IsZero() {
		return "-"
	}
	return end.Sub(j.Started).Round(100 * time.Millisecond).String()
}

func renderJobs(t table.Model, jobs map[string]*JobState, theme Theme, width int) string {
	innerWidth := width - 4
	if len(jobs) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("JOBS"),
			theme.Dim.Render("  No jobs yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("JOBS"),
		t.View(),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func shortID(id string) string {
	const prefix = "job_"
	if len(id) > len(prefix)+8 {
		return id[:len(prefix)+8]
	}
	return id
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
