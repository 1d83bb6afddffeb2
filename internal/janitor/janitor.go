// Package janitor recovers records orphaned by a previous process and keeps
// the job history and agent board bounded.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/holdline/internal/delegate"
	"github.com/mattjoyce/holdline/internal/events"
	"github.com/mattjoyce/holdline/internal/jobstore"
)

// Results written to records the coordinator could not see through.
const (
	OrphanedJobResult   = "coordinator restarted before the worker finished"
	OrphanedAgentResult = "coordinator restarted before the task finished"
)

// Config controls the maintenance cadence.
type Config struct {
	Interval time.Duration
	// JobRetention is how long terminal jobs are kept. Zero disables pruning.
	JobRetention time.Duration
}

// Janitor runs crash recovery once and then prunes on every tick.
type Janitor struct {
	cfg    Config
	jobs   JobStore
	board  AgentBoard
	live   LiveSet
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New creates a Janitor. board and live may be nil.
func New(cfg Config, jobs JobStore, board AgentBoard, live LiveSet, pub events.Publisher, logger *slog.Logger) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if pub == nil {
		pub = events.Discard
	}
	return &Janitor{
		cfg:    cfg,
		jobs:   jobs,
		board:  board,
		live:   live,
		events: pub,
		logger: logger.With("component", "janitor"),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// Start performs crash recovery and begins the tick loop.
func (j *Janitor) Start(ctx context.Context) error {
	j.logger.Info("Starting janitor", "interval", j.cfg.Interval.String(), "job_retention", j.cfg.JobRetention.String())

	if err := j.recoverOrphanedJobs(ctx); err != nil {
		return fmt.Errorf("janitor crash recovery failed: %w", err)
	}
	if err := j.recoverOrphanedAgents(ctx); err != nil {
		return fmt.Errorf("janitor crash recovery failed: %w", err)
	}

	j.wg.Add(1)
	go j.tickLoop(ctx)
	return nil
}

// Stop ends the tick loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.once.Do(func() {
		j.logger.Info("Stopping janitor")
		close(j.stopCh)
	})
	j.wg.Wait()
}

func (j *Janitor) tickLoop(ctx context.Context) {
	defer j.wg.Done()

	j.tick(ctx)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.tick(ctx)
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick performs a single maintenance pass.
func (j *Janitor) tick(ctx context.Context) {
	j.logger.Debug("Janitor tick")

	if j.cfg.JobRetention > 0 {
		cutoff := j.now().Add(-j.cfg.JobRetention)
		n, err := j.jobs.PruneTerminal(ctx, cutoff)
		if err != nil {
			j.logger.Error("Failed to prune jobs", "error", err)
		} else if n > 0 {
			j.logger.Info("Pruned terminal jobs", "count", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
		}
	}

	if j.board != nil {
		if err := j.board.Trim(ctx); err != nil {
			j.logger.Error("Failed to trim agent board", "error", err)
		}
	}
}

// recoverOrphanedJobs finalises pending jobs that no worker in this process
// will ever answer.
func (j *Janitor) recoverOrphanedJobs(ctx context.Context) error {
	pending, err := j.jobs.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to find pending jobs for recovery: %w", err)
	}

	orphaned := 0
	for _, job := range pending {
		if j.live != nil && j.live.Has(job.ID) {
			continue
		}
		orphaned++
		j.logger.Warn("Recovering orphaned job", "job_id", job.ID, "created_at", job.CreatedAt.UTC().Format(time.RFC3339))

		won, err := j.jobs.Finish(ctx, job.ID, jobstore.Outcome{
			Query:  job.Query,
			Status: jobstore.StatusError,
			Result: OrphanedJobResult,
		})
		if err != nil {
			j.logger.Error("Failed to finalise orphaned job", "job_id", job.ID, "error", err)
			continue
		}
		if won {
			j.events.Publish(events.JobFailed, map[string]string{"job_id": job.ID, "reason": "orphaned"})
		}
	}

	if orphaned == 0 {
		j.logger.Info("No orphaned jobs found")
	}
	return nil
}

// recoverOrphanedAgents marks running entries left by a previous spawner as
// failed. Entries reported by external runners are left alone.
func (j *Janitor) recoverOrphanedAgents(ctx context.Context) error {
	if j.board == nil {
		return nil
	}
	agents, err := j.board.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list agents for recovery: %w", err)
	}

	for _, a := range agents {
		if a.Status != delegate.AgentRunning || !strings.HasPrefix(a.ID, delegate.IDPrefix) {
			continue
		}
		j.logger.Warn("Recovering orphaned agent", "agent_id", a.ID)
		if _, err := j.board.Upsert(ctx, delegate.AgentUpdate{
			ID:     a.ID,
			Status: delegate.AgentError,
			Result: OrphanedAgentResult,
		}); err != nil {
			j.logger.Error("Failed to finalise orphaned agent", "agent_id", a.ID, "error", err)
		}
	}
	return nil
}
