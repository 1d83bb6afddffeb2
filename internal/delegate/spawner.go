// Package delegate hands heavier tasks found inside a fast-path reply to a
// background worker and tracks them on the agent-status board.
package delegate

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mattjoyce/holdline/internal/events"
	"github.com/mattjoyce/holdline/internal/log"
	"github.com/mattjoyce/holdline/internal/worker"
)

// DefaultResultLimit bounds the result summary stored on the board.
const DefaultResultLimit = 500

// IDPrefix marks board entries created by this process's spawner.
const IDPrefix = "delegate-"

// A marker never spans lines.
var markerRe = regexp.MustCompile(`(?i)\[DELEGATE:\s*(.+?)\]`)

// BoardStore is the part of the board the spawner writes to.
type BoardStore interface {
	Upsert(ctx context.Context, u AgentUpdate) (AgentStatus, error)
}

// Result is what the caller gets back from MaybeDelegate.
type Result struct {
	Reply     string `json:"reply"`
	Delegated bool   `json:"delegated"`
	AgentID   string `json:"agent_id,omitempty"`
}

type Config struct {
	Enabled     bool
	Model       string
	ResultLimit int
}

// Spawner launches delegated tasks. Each task runs detached from the
// request that triggered it.
type Spawner struct {
	cfg      Config
	board    BoardStore
	launcher worker.Launcher
	events   events.Publisher
	logger   *slog.Logger

	newID func() string
	wg    sync.WaitGroup
}

func NewSpawner(cfg Config, board BoardStore, launcher worker.Launcher, pub events.Publisher) *Spawner {
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = DefaultResultLimit
	}
	if pub == nil {
		pub = events.Discard
	}
	return &Spawner{
		cfg:      cfg,
		board:    board,
		launcher: launcher,
		events:   pub,
		logger:   log.WithComponent("delegate"),
		newID:    func() string { return IDPrefix + uuid.NewString() },
	}
}

// ParseMarker returns reply with every delegation marker removed and the
// task carried by the first marker, if any.
func ParseMarker(reply string) (cleaned, task string) {
	m := markerRe.FindStringSubmatch(reply)
	if m == nil {
		return reply, ""
	}
	cleaned = strings.TrimSpace(markerRe.ReplaceAllString(reply, ""))
	return cleaned, strings.TrimSpace(m[1])
}

// MaybeDelegate strips a delegation marker from reply and, when one is
// present and delegation is enabled, starts the task in the background.
// Replies without a marker are returned unchanged.
func (s *Spawner) MaybeDelegate(ctx context.Context, reply string) Result {
	cleaned, task := ParseMarker(reply)
	if task == "" {
		return Result{Reply: cleaned}
	}
	if !s.cfg.Enabled {
		s.logger.Debug("delegation marker ignored, delegation disabled")
		return Result{Reply: cleaned}
	}

	id := s.newID()
	logger := log.WithAgent(id)

	if _, err := s.board.Upsert(ctx, AgentUpdate{ID: id, Task: task, Status: AgentRunning, Model: s.cfg.Model}); err != nil {
		logger.Error("failed to record delegated task", "error", err)
	}
	s.events.Publish(events.AgentRunning, map[string]string{"agent_id": id, "task": task})
	logger.Info("delegating task", "task", task)

	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx), logger, id, task)

	return Result{Reply: cleaned, Delegated: true, AgentID: id}
}

func (s *Spawner) run(ctx context.Context, logger *slog.Logger, id, task string) {
	defer s.wg.Done()
	start := time.Now()

	state, result := s.execute(task)
	if state == AgentError {
		logger.Warn("delegated task failed", "error", result)
	} else {
		logger.Info("delegated task finished", "duration", time.Since(start).String())
	}

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := s.board.Upsert(wctx, AgentUpdate{ID: id, Status: state, Result: result}); err != nil {
		logger.Error("failed to record delegated task outcome", "status", state, "error", err)
	}

	evType := events.AgentDone
	if state == AgentError {
		evType = events.AgentError
	}
	s.events.Publish(evType, map[string]string{"agent_id": id, "status": string(state)})
}

func (s *Spawner) execute(task string) (AgentState, string) {
	proc, err := s.launcher.Launch(task)
	if err != nil {
		return AgentError, err.Error()
	}
	out, err := proc.Wait()
	text := strings.TrimSpace(out.Text)
	if err != nil {
		if text == "" {
			return AgentError, err.Error()
		}
		return AgentError, truncate(text, s.cfg.ResultLimit)
	}
	if text == "" {
		return AgentDone, "Done"
	}
	return AgentDone, truncate(text, s.cfg.ResultLimit)
}

// Drain waits for background tasks to finish or for ctx to end.
func (s *Spawner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
