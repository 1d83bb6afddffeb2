package jobstore

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a job record.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusAborted Status = "aborted"
	StatusError   Status = "error"
)

// Terminal reports whether s is one of the final states.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusAborted, StatusError:
		return true
	}
	return false
}

var ErrJobNotFound = errors.New("job not found")

// Job is one persisted submission. Result is empty while the job is pending
// and immutable once the job is terminal.
type Job struct {
	ID          string     `json:"id"`
	Query       string     `json:"query"`
	Status      Status     `json:"status"`
	Result      string     `json:"result,omitempty"`
	Truncated   bool       `json:"truncated,omitempty"`
	CreatedAt   time.Time  `json:"timestamp"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration is the wall time between creation and completion, or zero while pending.
func (j Job) Duration() time.Duration {
	if j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(j.CreatedAt)
}

// Outcome is the terminal write applied to a job by Finish.
type Outcome struct {
	Query     string
	Status    Status
	Result    string
	Truncated bool

	// SubmittedAt is the creation time used if the pending record is missing.
	SubmittedAt time.Time
}
