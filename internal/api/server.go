// Package api exposes the validation service over HTTP: job submission,
// status polling, milestone feeds, and an SSE stream.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/jobs"
	"github.com/storefrontlabs/pricewatch/internal/metrics"
)

// Config tunes the HTTP server.
type Config struct {
	Addr           string
	APIKey         string
	RequestTimeout time.Duration
	StreamInterval time.Duration
}

// JobStarter admits a new validation job and launches its run.
type JobStarter interface {
	StartJob(ctx context.Context, req jobs.Request) (jobs.Snapshot, error)
}

// JobReader serves job state to the read endpoints. *jobs.Store satisfies it.
type JobReader interface {
	Get(ctx context.Context, id string) (jobs.Snapshot, error)
	List(ctx context.Context) []jobs.Snapshot
	MilestonesSince(ctx context.Context, id string, since int) ([]jobs.Milestone, error)
}

// Server is the HTTP front end.
type Server struct {
	cfg     Config
	starter JobStarter
	store   JobReader
	logger  *zap.Logger
	httpSrv *http.Server
}

// NewServer wires routes and middleware.
func NewServer(cfg Config, starter JobStarter, store JobReader, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, starter: starter, store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.With(middleware.Timeout(cfg.RequestTimeout)).Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{job_id}", s.handleGetJob)
		r.Get("/jobs/{job_id}/milestones", s.handleMilestones)
		r.Get("/jobs/{job_id}/stream", s.handleStream)
	})

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), duration)
		s.logger.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", duration),
		)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
