// Package api exposes the tenant-scoped simulation HTTP surface. Every
// response uses the {success, data?, error?} envelope; the tenant comes from
// the verified X-Tenant-ID header set by the fronting layer.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"remsim/internal/playbook"
	"remsim/internal/simulation"
)

// PlaybookStore is the playbook persistence surface the handlers need.
type PlaybookStore interface {
	CreatePlaybook(ctx context.Context, pb *playbook.Playbook) error
	GetPlaybook(ctx context.Context, tenantID, id string) (*playbook.Playbook, error)
	ListPlaybooks(ctx context.Context, tenantID string) ([]*playbook.Playbook, error)
	UpdatePlaybook(ctx context.Context, pb *playbook.Playbook) error
	DeletePlaybook(ctx context.Context, tenantID, id string) error
}

// RunStore is the read-only run ledger surface the handlers need.
type RunStore interface {
	GetRun(ctx context.Context, tenantID, id string) (*simulation.Run, error)
	ListRuns(ctx context.Context, tenantID string, limit, offset int) ([]*simulation.Run, error)
	ListRunsByPlaybook(ctx context.Context, tenantID, playbookID string, limit, offset int) ([]*simulation.Run, error)
}

// SimulationRunner executes the simulation pipeline for one playbook.
type SimulationRunner interface {
	Run(ctx context.Context, tenantID, playbookID string, windowDays int) (*simulation.Run, error)
}

// Pinger reports backend reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	playbooks   PlaybookStore
	runs        RunStore
	runner      SimulationRunner
	store       Pinger // control-plane store, required
	metrics     Pinger // monitoring store, optional
	validate    *validator.Validate
	logger      *slog.Logger
	stopLimiter func()
}

// NewServer creates the API server. metrics may be nil when no monitoring
// store is configured.
func NewServer(playbooks PlaybookStore, runs RunStore, runner SimulationRunner, store, metrics Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		playbooks: playbooks,
		runs:      runs,
		runner:    runner,
		store:     store,
		metrics:   metrics,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// Routes returns the fully wired handler: method-pattern routes under /v1/
// behind the tenant check, plus the open /health endpoint.
func (s *Server) Routes(rateLimit RateLimitConfig) http.Handler {
	v1 := http.NewServeMux()
	v1.HandleFunc("GET /v1/playbooks", s.handleListPlaybooks)
	v1.HandleFunc("POST /v1/playbooks", s.handleCreatePlaybook)
	v1.HandleFunc("GET /v1/playbooks/{id}", s.handleGetPlaybook)
	v1.HandleFunc("PATCH /v1/playbooks/{id}", s.handleUpdatePlaybook)
	v1.HandleFunc("DELETE /v1/playbooks/{id}", s.handleDeletePlaybook)
	v1.HandleFunc("GET /v1/playbooks/{id}/runs", s.handleListPlaybookRuns)
	v1.HandleFunc("POST /v1/runs", s.handleCreateRun)
	v1.HandleFunc("GET /v1/runs", s.handleListRuns)
	v1.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth)
	root.Handle("/v1/", TenantMiddleware(v1))

	limit, stopLimiter := RateLimitMiddleware(rateLimit, s.logger)
	s.stopLimiter = stopLimiter

	var handler http.Handler = root
	handler = limit(handler)
	handler = SecurityHeadersMiddleware(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	return handler
}

// Close stops the rate limiter's cleanup goroutine. Safe to call more than
// once, and before Routes.
func (s *Server) Close() {
	if s.stopLimiter != nil {
		s.stopLimiter()
	}
}

// handleHealth handles GET /health. Liveness plus backend reachability; the
// process is degraded, not down, when a backend is unreachable, so the
// status code stays 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := map[string]string{"status": "ok"}

	if err := s.store.Ping(ctx); err != nil {
		health["status"] = "degraded"
		health["store"] = "unreachable"
	} else {
		health["store"] = "ok"
	}

	if s.metrics != nil {
		if err := s.metrics.Ping(ctx); err != nil {
			health["status"] = "degraded"
			health["metrics"] = "unreachable"
		} else {
			health["metrics"] = "ok"
		}
	} else {
		health["metrics"] = "disabled"
	}

	writeJSON(w, http.StatusOK, health)
}
