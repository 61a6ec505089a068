// Package httpapi exposes the trigger, processor and development endpoints.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/actaso/reflecta-lab-sub001/internal/config"
	"github.com/actaso/reflecta-lab-sub001/internal/scheduler"
	"github.com/actaso/reflecta-lab-sub001/internal/store"
)

// CycleRunner runs one scheduler cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (scheduler.Summary, error)
}

// ProcessRunner runs the per-user pipeline.
type ProcessRunner interface {
	Process(ctx context.Context, userID string, force bool) error
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	cfg    config.Config
	log    *zap.Logger
	cycles CycleRunner
	proc   ProcessRunner
	repo   store.Repo
}

// New creates the HTTP server wiring.
func New(cfg config.Config, log *zap.Logger, cycles CycleRunner, proc ProcessRunner, repo store.Repo) *Server {
	return &Server{cfg: cfg, log: log, cycles: cycles, proc: proc, repo: repo}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/v1/coaching", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/run-scheduler", s.handleRunScheduler)
		r.Post("/run-scheduler", s.handleRunScheduler)
		r.Post("/process", s.handleProcess)
		r.Post("/dev", s.handleDev)
	})

	return r
}

// auth enforces the bearer token. Development deployments without a
// configured token run open; everything else requires a match.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.IsDevelopment() && s.cfg.APIToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
