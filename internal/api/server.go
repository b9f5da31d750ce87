package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/progress"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/session"
)

// Builds is the part of the orchestrator the API serves.
type Builds interface {
	StartBuild(ctx context.Context, key string, input map[string]any) (string, error)
	GetState(id string) (session.Session, error)
	Cancel(id string) error
	GetArtifact(ctx context.Context, id string) (artifact.Bundle, error)
	Subscribe(ctx context.Context, id string) (<-chan progress.Event, error)
	Active() int
}

// Server represents the API server.
type Server struct {
	Addr      string
	router    *chi.Mux
	server    *http.Server
	builds    Builds
	errs      *errors.HTTPErrorAdapter
	logger    *slog.Logger
	metrics   http.Handler
	threshold func() int64
	heartbeat time.Duration
	timeout   time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// WithMetricsHandler serves h under /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithInlineThreshold sets the function read on every artifact request to
// decide which secondary files get embedded.
func WithInlineThreshold(fn func() int64) Option { return func(s *Server) { s.threshold = fn } }

// WithHeartbeat sets the interval of SSE keepalive comments.
func WithHeartbeat(d time.Duration) Option { return func(s *Server) { s.heartbeat = d } }

// NewServer creates a new API server.
func NewServer(cfg config.ServerConfig, builds Builds, opts ...Option) *Server {
	s := &Server{
		Addr:      cfg.Addr,
		router:    chi.NewRouter(),
		builds:    builds,
		logger:    slog.Default(),
		threshold: func() int64 { return 0 },
		heartbeat: 15 * time.Second,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.errs = errors.NewHTTPErrorAdapter(s.logger)

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	// Event streams stay open until the build ends, so only the
	// request/response routes get a deadline.
	s.router.Get("/builds/{id}/events", s.handleBuildEvents)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/healthz", s.handleHealth)

		r.Post("/builds", s.handleCreateBuild)
		r.Get("/builds/{id}", s.handleGetBuild)
		r.Delete("/builds/{id}", s.handleCancelBuild)
		r.Get("/builds/{id}/artifact", s.handleGetArtifact)
		r.Get("/builds/{id}/files/*", s.handleGetFile)

		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics)
		}
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Response represents a standard API response.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// Error writes a classified error response.
func (s *Server) Error(w http.ResponseWriter, r *http.Request, err error) {
	s.errs.WriteErrorResponse(w, r, err)
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.Success(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"active_builds": s.builds.Active(),
	})
}
