// Package api provides the HTTP server for gdpnet: reward progress, claims
// and settings for the member app and admin tooling.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gdp-network/gdpnet/internal/app/claims"
	"github.com/gdp-network/gdpnet/internal/app/eligibility"
	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/observability"
)

// Version is reported by /api/version. Overridden at build time.
var Version = "0.1.0"

// Options configure optional server features.
type Options struct {
	MetricsEnabled bool
	AllowedOrigins []string
	ClaimLimiter   *RateLimiter // nil disables claim rate limiting
	RequestTimeout time.Duration
}

// Server is the gdpnet HTTP API server.
type Server struct {
	engine   *eligibility.Engine
	claims   *claims.Service
	settings domain.SettingsStore
	tracer   *observability.Tracer
	log      *slog.Logger
	opts     Options
}

// NewServer creates a new API server.
func NewServer(engine *eligibility.Engine, svc *claims.Service, settings domain.SettingsStore,
	tracer *observability.Tracer, log *slog.Logger, opts Options) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{engine: engine, claims: svc, settings: settings, tracer: tracer, log: log, opts: opts}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(traceMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/tiers", s.handleTiers)
		r.Get("/settings", s.handleSettings)
		r.Get("/traces", s.handleTraces)

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/rewards", s.handleRewards)
			r.Get("/rewards/{tier}", s.handleRewardTier)
			r.Get("/claims", s.handleClaims)
			r.With(s.claimRateLimit).Post("/rewards/{tier}/claim", s.handleClaim)
		})
	})

	if s.opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, typ, msg string, details map[string]any) {
	body := map[string]any{
		"message": msg,
		"type":    typ,
	}
	for k, v := range details {
		body[k] = v
	}
	writeJSON(w, status, map[string]any{"error": body})
}

// traceMiddleware uses the request ID as the trace ID for claim spans and
// log correlation.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithTraceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records request counts and latency by route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// ClaimLimiter returns the claim rate limiter, or nil when disabled.
func (s *Server) ClaimLimiter() *RateLimiter { return s.opts.ClaimLimiter }
