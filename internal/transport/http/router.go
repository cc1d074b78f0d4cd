// Package httptransport assembles the public HTTP surface: shared middleware,
// health checks, metrics, and the authenticated feature routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ndaflow/internal/idempotency"
	"ndaflow/internal/ratelimit"
	"ndaflow/pkg/platform/httputil"
	"ndaflow/pkg/platform/middleware/auth"
	"ndaflow/pkg/platform/middleware/metadata"
	"ndaflow/pkg/platform/middleware/request"
	"ndaflow/pkg/platform/middleware/requesttime"
)

// Registrar mounts one feature's routes on the authenticated router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouterConfig carries the cross-cutting pieces every route shares.
type RouterConfig struct {
	Logger         *slog.Logger
	Tokens         auth.TokenValidator
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
	RateLimiter    ratelimit.Store
	WritePolicy    ratelimit.Policy
	// Checks back /readyz; keys name the dependency in the response.
	Checks map[string]HealthCheck
	// Metrics serves /metrics. Nil uses the default Prometheus registry.
	Metrics http.Handler
}

const readinessTimeout = 2 * time.Second

// NewRouter wires the middleware chain and mounts every feature behind bearer auth.
func NewRouter(cfg RouterConfig, features ...Registrar) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metricsHandler := cfg.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(cfg.Checks, logger))
	r.Handle("/metrics", metricsHandler)

	r.Group(func(api chi.Router) {
		api.Use(auth.RequireAuth(cfg.Tokens, logger))
		if cfg.RateLimiter != nil {
			api.Use(ratelimit.Middleware(cfg.RateLimiter, cfg.WritePolicy, logger))
		}
		if cfg.Idempotency != nil {
			ttl := cfg.IdempotencyTTL
			if ttl <= 0 {
				ttl = idempotency.DefaultTTL
			}
			api.Use(idempotency.Middleware(cfg.Idempotency, ttl, logger))
		}
		for _, f := range features {
			f.Register(api)
		}
	})
	return r
}

func readiness(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, results)
	}
}
