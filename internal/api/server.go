// Package api exposes the HTTP interface for the sitegen service.
package api

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/metrics"
	"github.com/JakeFAU/sitegen/internal/site"
	"github.com/JakeFAU/sitegen/internal/storage"
)

// SiteGenerator streams a generated site for one request.
type SiteGenerator interface {
	Generate(ctx context.Context, req site.GenerationRequest) iter.Seq2[string, error]
}

// Limiter admits generate requests per key.
type Limiter interface {
	Allow(key string) bool
}

// Options tunes the Server. Zero values disable the optional behavior.
type Options struct {
	// StaticDir serves the built frontend at / when set.
	StaticDir string
	// RequestTimeout bounds every route except the generate stream.
	RequestTimeout time.Duration
	// URLs builds public artifact links for site responses.
	URLs storage.URLBuilder
	// Limiter gates the generate route per site.
	Limiter Limiter
	// Ready reports downstream readiness for /readyz.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the site repository and the generator.
type Server struct {
	router    chi.Router
	sites     site.Repository
	generator SiteGenerator
	opts      Options
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(sites site.Repository, generator SiteGenerator, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		sites:     sites,
		generator: generator,
		opts:      opts,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/frontend-api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(opts.RequestTimeout))
			r.Get("/hello", s.hello)
			r.Get("/users/me", s.currentUser)
			r.Post("/sites/create", s.createSite)
			r.Get("/sites/my", s.listSites)
			r.Get("/sites/{site_id}", s.getSite)
		})
		r.Post("/sites/{site_id}/generate", s.generateSite)
	})

	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
