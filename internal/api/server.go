package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/mattjoyce/holdline/internal/auth"
	"github.com/mattjoyce/holdline/internal/delegate"
	"github.com/mattjoyce/holdline/internal/dispatch"
	"github.com/mattjoyce/holdline/internal/events"
	"github.com/mattjoyce/holdline/internal/jobstore"
	"github.com/mattjoyce/holdline/internal/registry"
)

// Dispatcher runs queries against the worker pool.
type Dispatcher interface {
	Submit(ctx context.Context, query string) (dispatch.Response, error)
	Abort(ctx context.Context, jobID string) dispatch.AbortResult
	Running() []*registry.Handle
}

// JobReader looks up individual job records.
type JobReader interface {
	Get(ctx context.Context, id string) (*jobstore.Job, error)
	CountPending(ctx context.Context) (int, error)
}

// Aggregator renders job state for conversational callers.
type Aggregator interface {
	CheckResults(ctx context.Context) string
	FullHistory(ctx context.Context) string
	Jobs(ctx context.Context, limit int) ([]jobstore.Job, error)
}

// Delegator inspects fast-path replies for delegation markers.
type Delegator interface {
	MaybeDelegate(ctx context.Context, reply string) delegate.Result
}

// AgentBoard is the agent-status board.
type AgentBoard interface {
	List(ctx context.Context) ([]delegate.AgentStatus, error)
	Upsert(ctx context.Context, u delegate.AgentUpdate) (delegate.AgentStatus, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the admin bearer token (scope "*").
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens       []auth.TokenConfig
	CORSOrigins  []string
	MaxBodyBytes int64
	// CallbackSecret signs POST /api/agents/callback. Empty disables the route.
	CallbackSecret string
	// JobListLimit caps GET /api/jobs when no limit is given.
	JobListLimit int
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	dispatcher Dispatcher
	jobs       JobReader
	results    Aggregator
	delegator  Delegator
	board      AgentBoard
	events     *events.Hub
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// Deps bundles the components the server fronts.
type Deps struct {
	Dispatcher Dispatcher
	Jobs       JobReader
	Results    Aggregator
	Delegator  Delegator
	Board      AgentBoard
	Events     *events.Hub
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	if config.JobListLimit <= 0 {
		config.JobListLimit = 50
	}
	hub := deps.Events
	if hub == nil {
		hub = events.NewHub(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:     config,
		dispatcher: deps.Dispatcher,
		jobs:       deps.Jobs,
		results:    deps.Results,
		delegator:  deps.Delegator,
		board:      deps.Board,
		events:     hub,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler, wrapped for CORS when origins are configured.
func (s *Server) Handler() http.Handler {
	r := s.setupRoutes()
	if len(s.config.CORSOrigins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:         300,
	})
	return c.Handler(r)
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	// Signed by the agent runner, not bearer-authenticated.
	if s.config.CallbackSecret != "" {
		r.Post("/api/agents/callback", s.handleAgentCallback)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScopes(auth.ScopeJobsRW)).Post("/api/submit", s.handleSubmit)
		r.With(s.requireScopes(auth.ScopeJobsRW)).Post("/api/abort", s.handleAbort)

		jobsRO := r.With(s.requireScopes(auth.ScopeJobsRO))
		jobsRO.Get("/api/results", s.handleResults)
		jobsRO.Post("/api/results", s.handleResults)
		jobsRO.Get("/api/history", s.handleHistory)
		jobsRO.Post("/api/history", s.handleHistory)
		jobsRO.Get("/api/jobs", s.handleListJobs)
		jobsRO.Get("/api/job/{jobID}", s.handleGetJob)

		r.With(s.requireScopes(auth.ScopeAgentsRW)).Post("/api/delegate", s.handleDelegate)
		r.With(s.requireScopes(auth.ScopeAgentsRO)).Get("/api/agents", s.handleListAgents)
		r.With(s.requireScopes(auth.ScopeAgentsRW)).Post("/api/agents", s.handleUpdateAgent)

		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
