package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/holdline/internal/events"
	"github.com/mattjoyce/holdline/internal/jobstore"
	"github.com/mattjoyce/holdline/internal/log"
	"github.com/mattjoyce/holdline/internal/registry"
	"github.com/mattjoyce/holdline/internal/worker"
)

const (
	DefaultDeadline       = 15 * time.Second
	DefaultPendingMessage = "Still working on that. It's a complex query. Call check_results in about 10 seconds to get the answer."
	DefaultFallbackResult = "Could not process that request."
	DefaultAbortedResult  = "Aborted by user"
	DefaultMaxQueryBytes  = 4096

	// storeTimeout bounds terminal writes that run after the request is gone.
	storeTimeout = 10 * time.Second
)

// ErrEmptyQuery is returned by Submit when nothing is left after sanitizing.
var ErrEmptyQuery = errors.New("query is empty")

// ResponseStatus tells the caller what kind of answer it received.
type ResponseStatus string

const (
	StatusFinal   ResponseStatus = "final"
	StatusPending ResponseStatus = "pending"
	StatusError   ResponseStatus = "error"
)

// Response is the single answer produced for a submission.
type Response struct {
	JobID  string         `json:"job_id"`
	Status ResponseStatus `json:"status"`
	Result string         `json:"result"`
}

// AbortResult reports which live workers were cancelled.
type AbortResult struct {
	AbortedCount int      `json:"aborted_count"`
	AbortedIDs   []string `json:"aborted_ids"`
	Message      string   `json:"result"`
}

// Store is the part of the job store the dispatcher writes to.
type Store interface {
	Append(ctx context.Context, id, query string) (jobstore.Job, error)
	Finish(ctx context.Context, id string, out jobstore.Outcome) (bool, error)
}

// Config tunes the submission race. Zero fields take the package defaults.
type Config struct {
	Deadline       time.Duration
	PendingMessage string
	FallbackResult string
	AbortedResult  string
	MaxQueryBytes  int
}

func (c Config) withDefaults() Config {
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	if c.PendingMessage == "" {
		c.PendingMessage = DefaultPendingMessage
	}
	if c.FallbackResult == "" {
		c.FallbackResult = DefaultFallbackResult
	}
	if c.AbortedResult == "" {
		c.AbortedResult = DefaultAbortedResult
	}
	if c.MaxQueryBytes == 0 {
		c.MaxQueryBytes = DefaultMaxQueryBytes
	}
	return c
}

// Dispatcher owns the live-worker registry and every submission's race.
type Dispatcher struct {
	cfg      Config
	store    Store
	launcher worker.Launcher
	registry *registry.Registry
	events   events.Publisher
	logger   *slog.Logger

	newID    func() string
	inflight sync.WaitGroup
}

// New creates a Dispatcher. A nil publisher discards events.
func New(cfg Config, store Store, launcher worker.Launcher, reg *registry.Registry, pub events.Publisher) *Dispatcher {
	if reg == nil {
		reg = registry.New()
	}
	if pub == nil {
		pub = events.Discard
	}
	return &Dispatcher{
		cfg:      cfg.withDefaults(),
		store:    store,
		launcher: launcher,
		registry: reg,
		events:   pub,
		logger:   log.WithComponent("dispatch"),
		newID:    func() string { return "job_" + uuid.NewString() },
	}
}

// Submit launches a worker for query and returns once the worker finishes or
// the deadline passes, whichever comes first. A cancelled ctx is treated like
// the deadline: the worker keeps running and the job is finalised later.
func (d *Dispatcher) Submit(ctx context.Context, query string) (Response, error) {
	q := Sanitize(query, d.cfg.MaxQueryBytes)
	if q == "" {
		return Response{}, ErrEmptyQuery
	}

	id := d.newID()
	logger := log.WithJob(id)
	submittedAt := time.Now()

	if _, err := d.store.Append(ctx, id, q); err != nil {
		// The job still runs; Finish inserts the record if it is missing.
		logger.Error("failed to record pending job", "error", err)
	}
	d.events.Publish(events.JobSubmitted, map[string]string{"job_id": id, "query": q})

	gate := NewResponseGate()

	proc, err := d.launcher.Launch(q)
	if err != nil {
		logger.Error("worker launch failed", "error", err)
		result := fmt.Sprintf("Failed to start worker: %v", err)
		if d.finish(ctx, logger, id, jobstore.Outcome{Query: q, Status: jobstore.StatusError, Result: result, SubmittedAt: submittedAt}) {
			d.events.Publish(events.JobFailed, map[string]string{"job_id": id, "result": result})
		}
		gate.Fire(Response{JobID: id, Status: StatusError, Result: result})
		return <-gate.C(), nil
	}

	h := &registry.Handle{ID: id, Query: q, Process: proc, StartedAt: submittedAt}
	d.registry.Register(h)
	logger.Info("worker started", "pid", proc.Pid())

	d.inflight.Add(1)
	go d.awaitExit(logger, h, gate)

	timer := time.NewTimer(d.cfg.Deadline)
	defer timer.Stop()

	select {
	case r := <-gate.C():
		return r, nil
	case <-timer.C:
		d.firePending(logger, h, gate, "deadline")
	case <-ctx.Done():
		d.firePending(logger, h, gate, "caller gone")
	}
	return <-gate.C(), nil
}

func (d *Dispatcher) firePending(logger *slog.Logger, h *registry.Handle, gate *ResponseGate, reason string) {
	if gate.Fire(Response{JobID: h.ID, Status: StatusPending, Result: d.cfg.PendingMessage}) {
		logger.Info("responding with placeholder, worker continues", "reason", reason)
		d.events.Publish(events.JobPending, map[string]string{"job_id": h.ID, "reason": reason})
	}
}

// awaitExit finalises the job when its worker ends. It runs detached from
// the submitting request.
func (d *Dispatcher) awaitExit(logger *slog.Logger, h *registry.Handle, gate *ResponseGate) {
	defer d.inflight.Done()

	out, waitErr := h.Process.Wait()
	d.registry.Remove(h)

	text := strings.TrimSpace(out.Text)
	outcome := jobstore.Outcome{Query: h.Query, Truncated: out.Truncated, SubmittedAt: h.StartedAt}
	resp := Response{JobID: h.ID, Status: StatusFinal}
	evType := events.JobCompleted

	switch {
	case h.Aborted():
		outcome.Status = jobstore.StatusAborted
		outcome.Result = d.cfg.AbortedResult
		evType = events.JobAborted
	default:
		if errors.Is(waitErr, worker.ErrTimedOut) {
			logger.Warn("worker killed at hard timeout, keeping partial output")
		} else if waitErr != nil {
			logger.Warn("worker exited abnormally", "error", waitErr, "exit_code", out.ExitCode)
		}
		outcome.Status = jobstore.StatusDone
		outcome.Result = text
		if outcome.Result == "" {
			outcome.Result = d.cfg.FallbackResult
		}
	}
	if out.Truncated {
		logger.Warn("worker output truncated at buffer limit")
	}
	resp.Result = outcome.Result

	applied := d.finish(context.Background(), logger, h.ID, outcome)
	logger.Info("worker finished", "status", outcome.Status, "duration", time.Since(h.StartedAt).String())
	if applied {
		d.events.Publish(evType, map[string]any{
			"job_id":    h.ID,
			"status":    outcome.Status,
			"truncated": outcome.Truncated,
		})
	}

	if !gate.Fire(resp) {
		logger.Debug("caller already answered, result stored for polling")
	}
}

// finish records the outcome and reports whether it became the job's
// terminal state.
func (d *Dispatcher) finish(parent context.Context, logger *slog.Logger, id string, out jobstore.Outcome) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), storeTimeout)
	defer cancel()

	applied, err := d.store.Finish(ctx, id, out)
	if err != nil {
		logger.Error("failed to record job outcome", "status", out.Status, "error", err)
		return false
	}
	if !applied {
		logger.Debug("job already terminal, outcome dropped", "status", out.Status)
	}
	return applied
}

// Abort terminates the live worker for jobID, or every live worker when
// jobID is empty. Unknown ids are a no-op.
func (d *Dispatcher) Abort(ctx context.Context, jobID string) AbortResult {
	var handles []*registry.Handle
	if jobID == "" {
		handles = d.registry.TakeAll()
	} else if h, ok := d.registry.Take(jobID); ok {
		handles = []*registry.Handle{h}
	}

	ids := make([]string, 0, len(handles))
	for _, h := range handles {
		logger := log.WithJob(h.ID)
		if !h.MarkAborted() {
			continue
		}
		if err := h.Process.Terminate(); err != nil {
			logger.Warn("failed to signal worker", "error", err)
		}
		if d.finish(ctx, logger, h.ID, jobstore.Outcome{
			Query:       h.Query,
			Status:      jobstore.StatusAborted,
			Result:      d.cfg.AbortedResult,
			SubmittedAt: h.StartedAt,
		}) {
			d.events.Publish(events.JobAborted, map[string]any{
				"job_id":    h.ID,
				"status":    jobstore.StatusAborted,
				"truncated": false,
			})
		}
		logger.Info("worker aborted")
		ids = append(ids, h.ID)
	}

	res := AbortResult{AbortedCount: len(ids), AbortedIDs: ids}
	if len(ids) == 0 {
		res.Message = "No running jobs to abort."
		return res
	}
	res.Message = fmt.Sprintf("Aborted %d job(s). %s", len(ids), strings.Join(ids, ", "))
	d.logger.Info("abort completed", "aborted_count", len(ids))
	return res
}

// Running returns the live workers, oldest first.
func (d *Dispatcher) Running() []*registry.Handle {
	return d.registry.Snapshot()
}

// Drain waits for in-flight workers to be finalised or for ctx to end.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
