package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/holdline/internal/delegate"
	"github.com/mattjoyce/holdline/internal/dispatch"
	"github.com/mattjoyce/holdline/internal/events"
	"github.com/mattjoyce/holdline/internal/jobstore"
)

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Subscribers:   s.events.Subscribers(),
	}
	if s.dispatcher != nil {
		resp.RunningWorkers = len(s.dispatcher.Running())
	}
	if s.jobs != nil {
		pending, err := s.jobs.CountPending(r.Context())
		if err != nil {
			s.logger.Warn("healthz pending count failed", "error", err)
			resp.Status = "degraded"
		}
		resp.PendingJobs = pending
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleSubmit handles POST /api/submit.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}

	resp, err := s.dispatcher.Submit(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, dispatch.ErrEmptyQuery) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit query")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleAbort handles POST /api/abort. An empty body aborts everything.
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req AbortRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}
	respondJSON(w, http.StatusOK, s.dispatcher.Abort(r.Context(), req.JobID))
}

// handleResults handles GET|POST /api/results.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, TextResponse{Result: s.results.CheckResults(r.Context())})
}

// handleHistory handles GET|POST /api/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, TextResponse{Result: s.results.FullHistory(r.Context())})
}

// handleListJobs handles GET /api/jobs?limit=N.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := s.config.JobListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	jobs, err := s.results.Jobs(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []jobstore.Job{}
	}
	respondJSON(w, http.StatusOK, JobListResponse{Jobs: jobs})
}

// handleGetJob handles GET /api/job/{jobID}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("failed to retrieve job", "job_id", jobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}

	resp := JobResponse{Job: *job}
	if job.CompletedAt != nil {
		secs := job.Duration().Seconds()
		resp.DurationSeconds = &secs
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleDelegate handles POST /api/delegate.
func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var req DelegateRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	respondJSON(w, http.StatusOK, s.delegator.MaybeDelegate(r.Context(), req.Reply))
}

// handleListAgents handles GET /api/agents.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.board.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list agents", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	respondJSON(w, http.StatusOK, agents)
}

// handleUpdateAgent handles POST /api/agents.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var u delegate.AgentUpdate
	if !s.decodeBody(w, r, &u, false) {
		return
	}
	s.applyAgentUpdate(w, r, u)
}

func (s *Server) applyAgentUpdate(w http.ResponseWriter, r *http.Request, u delegate.AgentUpdate) {
	if u.ID == "" {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	switch u.Status {
	case "", delegate.AgentRunning, delegate.AgentDone, delegate.AgentError:
	default:
		s.writeError(w, http.StatusBadRequest, "status must be running, done or error")
		return
	}

	agent, err := s.board.Upsert(r.Context(), u)
	if err != nil {
		s.logger.Error("failed to update agent", "agent_id", u.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update agent")
		return
	}
	s.events.Publish(events.AgentUpdated, agent)
	respondJSON(w, http.StatusOK, agent)
}

// decodeBody reads a JSON body capped at MaxBodyBytes. With allowEmpty, an
// empty body leaves dst untouched.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(body) == 0 && allowEmpty {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
