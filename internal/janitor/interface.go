package janitor

import (
	"context"
	"time"

	"github.com/mattjoyce/holdline/internal/delegate"
	"github.com/mattjoyce/holdline/internal/jobstore"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/holdline/internal/janitor JobStore,AgentBoard

// JobStore defines the job store operations used by the janitor.
type JobStore interface {
	Pending(ctx context.Context) ([]jobstore.Job, error)
	Finish(ctx context.Context, id string, out jobstore.Outcome) (bool, error)
	PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error)
}

// AgentBoard defines the board operations used by the janitor.
type AgentBoard interface {
	List(ctx context.Context) ([]delegate.AgentStatus, error)
	Upsert(ctx context.Context, u delegate.AgentUpdate) (delegate.AgentStatus, error)
	Trim(ctx context.Context) error
}

// LiveSet reports whether a job still has a running worker.
type LiveSet interface {
	Has(id string) bool
}
