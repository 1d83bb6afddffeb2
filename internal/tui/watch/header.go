package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// HealthState tracks coordinator health from /healthz polling.
type HealthState struct {
	Status         string
	UptimeSeconds  int64
	RunningWorkers int
	PendingJobs    int
	Subscribers    int
	Connected      bool
	LastCheck      time.Time
}

func renderHeader(health HealthState, ticker Ticker, spinner Spinner, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.StatusDone.Render("HEALTHY")
	statusIcon := "✅"
	if !health.Connected {
		statusText = theme.StatusError.Render("CONNECTING")
		statusIcon = "🔌"
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusError.Render("DEGRADED")
		statusIcon = "⚠️"
	}

	lastEventStr := "never"
	if !spinner.LastEvent().IsZero() {
		lastEventStr = humanize.RelTime(spinner.LastEvent(), now, "ago", "from now")
	}

	titleText := fmt.Sprintf(" HOLDLINE WATCH %s", theme.Highlight.Render(ticker.Current()))
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s %s  ⏱ %s  Workers: %d  Pending: %d  Watchers: %d",
		statusIcon, statusText,
		formatUptime(time.Duration(health.UptimeSeconds)*time.Second),
		health.RunningWorkers,
		health.PendingJobs,
		health.Subscribers,
	)

	activityLine := fmt.Sprintf(" Last event: %s %s", lastEventStr, spinner.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatUptime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%sd %dh", humanize.Comma(int64(d.Hours())/24), int(d.Hours())%24)
	}
}
