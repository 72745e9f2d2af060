// Package server exposes the HTTP interface for the scraper service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/config"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/logging"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/metrics"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/proxy"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/store"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/syncer"
)

const (
	requestTimeout = 60 * time.Second
	handlerTimeout = 3 * time.Second
)

// Sync drives scrape runs. *syncer.Syncer satisfies it.
type Sync interface {
	Run(ctx context.Context, force bool) (syncer.RunStats, error)
	SyncSeries(ctx context.Context, seriesURL string, force bool) (syncer.RunStats, error)
	Status() (bool, syncer.RunStats)
}

// Server wires HTTP handlers to the syncer, store, proxy pool, and log ring.
type Server struct {
	router  chi.Router
	sync    Sync
	store   store.Store
	pool    *proxy.Pool
	ring    *logging.Ring
	cfg     config.Config
	logger  *zap.Logger
	baseCtx context.Context
	started time.Time
}

// New constructs a Server with middleware and routes. ctx bounds background
// runs started from the trigger endpoints; request contexts do not, so a
// closed client connection never cancels a sync mid-flight.
func New(
	ctx context.Context,
	cfg config.Config,
	sync Sync,
	st store.Store,
	pool *proxy.Pool,
	ring *logging.Ring,
	logger *zap.Logger,
) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sync:    sync,
		store:   st,
		pool:    pool,
		ring:    ring,
		cfg:     cfg,
		logger:  logger,
		baseCtx: ctx,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(requestLogMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(requestTimeout))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/episodes/recent", s.recentEpisodes)
		r.Get("/logs", s.recentLogs)

		r.Group(func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Post("/sync", s.triggerSync)
			r.Post("/sync/series", s.triggerSeries)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness ping failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
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
