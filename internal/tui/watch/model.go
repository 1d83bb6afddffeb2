package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/holdline/internal/events"
)

const (
	eventLogSize   = 50
	seedJobLimit   = 20
	healthInterval = 5 * time.Second
	reconnectDelay = 3 * time.Second
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health      HealthState
	jobs        map[string]*JobState
	agents      map[string]*AgentState
	eventLog    []events.Event
	lastEventID int64

	ticker  Ticker
	spinner Spinner
	theme   Theme
	table   table.Model

	hubEvents chan events.Event
	now       func() time.Time

	lastError string
}

// New creates a watch model for the coordinator at apiURL.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    strings.TrimRight(apiURL, "/"),
		apiKey:    apiKey,
		jobs:      make(map[string]*JobState),
		agents:    make(map[string]*AgentState),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		theme:     NewDefaultTheme(),
		table:     newJobTable(),
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		func() tea.Msg { return fetchJobs(m.apiURL, m.apiKey, seedJobLimit) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(msg.Width-8, 20))

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay(m.now())
		m.refreshTable()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		m.applyEvent(e)
		return m, receiveNextEvent(m.hubEvents)

	case jobsMsg:
		seedJobs(m.jobs, msg)
		m.refreshTable()

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.RunningWorkers = msg.RunningWorkers
		m.health.PendingJobs = msg.PendingJobs
		m.health.Subscribers = msg.Subscribers
		m.health.Connected = true
		m.health.LastCheck = m.now()
		m.lastError = ""
		return m, m.pollHealth()

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.lastEventID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, m.pollHealth()
	}

	return m, nil
}

func (m Model) pollHealth() tea.Cmd {
	return tea.Tick(healthInterval, func(time.Time) tea.Msg {
		return fetchHealth(m.apiURL, m.apiKey)
	})
}

// applyEvent folds one stream event into the model.
func (m *Model) applyEvent(e events.Event) {
	if e.ID > m.lastEventID {
		m.lastEventID = e.ID
	}

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > eventLogSize {
		m.eventLog = m.eventLog[:eventLogSize]
	}
	m.spinner.OnEvent(m.now())

	switch {
	case strings.HasPrefix(e.Type, "job."):
		updateJobState(m.jobs, e)
		m.refreshTable()
	case strings.HasPrefix(e.Type, "agent."):
		updateAgentState(m.agents, e)
	}

	m.health.Connected = true
	m.lastError = ""
}

func (m *Model) refreshTable() {
	m.table.SetRows(jobRows(m.jobs, m.theme, m.now()))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to holdline..."
	}
	now := m.now()

	parts := []string{
		renderHeader(m.health, m.ticker, m.spinner, m.theme, m.width, now),
		renderJobs(m.table, m.jobs, m.theme, m.width),
		renderAgents(m.agents, m.theme, m.width, now),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusError.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll jobs"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
