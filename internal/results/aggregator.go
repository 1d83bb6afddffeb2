// Package results renders read-only summaries of the job store for polling
// callers.
package results

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattjoyce/holdline/internal/jobstore"
	"github.com/mattjoyce/holdline/internal/log"
)

const (
	DefaultRecentLimit  = 10
	DefaultHistoryLimit = 20
	DefaultListLimit    = 50
	DefaultPreviewChars = 200

	EmptyResults = "No results yet. Ask me something!"
	EmptyHistory = "No job history yet."

	ErrCheckingResults = "Error checking results."
	ErrLoadingHistory  = "Error loading history."
)

// Reader is the part of the job store the aggregator queries.
type Reader interface {
	Pending(ctx context.Context) ([]jobstore.Job, error)
	RecentDone(ctx context.Context, limit int) ([]jobstore.Job, error)
	List(ctx context.Context, limit int) ([]jobstore.Job, error)
}

type Config struct {
	RecentLimit  int
	HistoryLimit int
	PreviewChars int
	Location     *time.Location
}

type Aggregator struct {
	cfg    Config
	store  Reader
	logger *slog.Logger
}

func New(cfg Config, store Reader) *Aggregator {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = DefaultPreviewChars
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Aggregator{cfg: cfg, store: store, logger: log.WithComponent("results")}
}

// CheckResults lists every pending query and the most recent finished
// answers. Store failures degrade to a fixed message.
func (a *Aggregator) CheckResults(ctx context.Context) string {
	// Pending is read first so a job finishing between the two reads shows
	// up in one list or both, never neither.
	pending, err := a.store.Pending(ctx)
	if err != nil {
		a.logger.Error("failed to load pending jobs", "error", err)
		return ErrCheckingResults
	}
	done, err := a.store.RecentDone(ctx, a.cfg.RecentLimit)
	if err != nil {
		a.logger.Error("failed to load recent results", "error", err)
		return ErrCheckingResults
	}
	if len(done) == 0 && len(pending) == 0 {
		return EmptyResults
	}

	var b strings.Builder
	if len(pending) > 0 {
		queries := make([]string, len(pending))
		for i, j := range pending {
			queries[i] = j.Query
		}
		fmt.Fprintf(&b, "⏳ %d job(s) still running: %s\n\n", len(pending), strings.Join(queries, ", "))
	}
	for i, j := range done {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] Query: \"%s\" (%s)\nResult: %s", i+1, j.Query, seconds(j), j.Result)
	}

	a.logger.Debug("results checked", "done", len(done), "pending", len(pending))
	return strings.TrimRight(b.String(), "\n")
}

// FullHistory lists the newest jobs in any state with a status glyph, local
// submission time, duration, and a result preview.
func (a *Aggregator) FullHistory(ctx context.Context) string {
	jobs, err := a.store.List(ctx, a.cfg.HistoryLimit)
	if err != nil {
		a.logger.Error("failed to load job history", "error", err)
		return ErrLoadingHistory
	}
	if len(jobs) == 0 {
		return EmptyHistory
	}

	lines := make([]string, len(jobs))
	for i, j := range jobs {
		dur := "N/A"
		if j.CompletedAt != nil {
			dur = seconds(j)
		}
		query := j.Query
		if query == "" {
			query = "Task"
		}
		line := fmt.Sprintf("%s [%s] \"%s\" (%s)", glyph(j.Status), j.CreatedAt.In(a.cfg.Location).Format("3:04:05 PM"), query, dur)
		if j.Result != "" {
			line += "\n   → " + preview(j.Result, a.cfg.PreviewChars)
		}
		lines[i] = line
	}
	return fmt.Sprintf("📋 Job History (%d jobs):\n\n%s", len(jobs), strings.Join(lines, "\n\n"))
}

// Jobs returns the newest jobs for dashboards.
func (a *Aggregator) Jobs(ctx context.Context, limit int) ([]jobstore.Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	jobs, err := a.store.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if jobs == nil {
		jobs = []jobstore.Job{}
	}
	return jobs, nil
}

func glyph(s jobstore.Status) string {
	switch s {
	case jobstore.StatusDone:
		return "✅"
	case jobstore.StatusPending:
		return "⏳"
	default:
		return "❌"
	}
}

func seconds(j jobstore.Job) string {
	if j.CompletedAt == nil {
		return ""
	}
	return fmt.Sprintf("%ds", int64(math.Round(j.Duration().Seconds())))
}

// preview keeps the first n characters of s.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
