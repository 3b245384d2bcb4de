// SPDX-License-Identifier: MIT

// Package api exposes the fetch daemon over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/epgd/internal/cache"
	"github.com/ManuGH/epgd/internal/fetch"
	"github.com/ManuGH/epgd/internal/health"
	xglog "github.com/ManuGH/epgd/internal/log"
)

// APIDefaultMaxConnections is the connection default applied to HTTP fetch
// requests; more generous than the library default since API callers are
// usually interactive.
const APIDefaultMaxConnections = 5

// Fetcher is the orchestration surface the handlers call.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (string, error)
	FetchContainer(ctx context.Context, req fetch.Request) (string, error)
	FetchContainerRaw(ctx context.Context, doc []byte, opts fetch.Options) (string, error)
}

// Config tunes the HTTP surface.
type Config struct {
	// RateLimitRequests per RateLimitWindow, keyed by client IP, applied to
	// the fetch endpoints only.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Server wires handlers, probes, and metrics into one router.
type Server struct {
	fetcher Fetcher
	store   *cache.Store
	health  *health.Manager
	cfg     Config
}

// NewServer builds the HTTP server around its collaborators.
func NewServer(fetcher Fetcher, store *cache.Store, healthMgr *health.Manager, cfg Config) *Server {
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 10
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	return &Server{fetcher: fetcher, store: store, health: healthMgr, cfg: cfg}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(xglog.Middleware())

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
			r.Post("/fetch", s.handleFetch)
			r.Post("/fetch-docker", s.handleFetchDocker)
		})

		r.Get("/sites", s.handleSites)
		r.Get("/cache", s.handleCacheList)
		r.Get("/cache/{filename}", s.handleCacheGet)
		r.Delete("/cache", s.handleCacheClear)
	})

	return r
}

// requestID assigns each request a fresh ID, echoes it in the X-Request-Id
// header, and threads it through the context for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(xglog.ContextWithRequestID(r.Context(), id)))
	})
}
