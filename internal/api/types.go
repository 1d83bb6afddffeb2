package api

import (
	"github.com/mattjoyce/holdline/internal/jobstore"
)

// SubmitRequest is the JSON body for POST /api/submit.
type SubmitRequest struct {
	Query string `json:"query"`
}

// AbortRequest is the JSON body for POST /api/abort. An empty JobID aborts
// every running job.
type AbortRequest struct {
	JobID string `json:"job_id,omitempty"`
}

// TextResponse carries a human-readable summary.
type TextResponse struct {
	Result string `json:"result"`
}

// JobListResponse is returned by GET /api/jobs.
type JobListResponse struct {
	Jobs []jobstore.Job `json:"jobs"`
}

// JobResponse is returned by GET /api/job/{jobID}.
type JobResponse struct {
	jobstore.Job
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// DelegateRequest is the JSON body for POST /api/delegate.
type DelegateRequest struct {
	Reply string `json:"reply"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	RunningWorkers int    `json:"running_workers"`
	PendingJobs    int    `json:"pending_jobs"`
	Subscribers    int    `json:"subscribers"`
}
