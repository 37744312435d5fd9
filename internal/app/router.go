// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fossil-proof/proof-pipeline/internal/adapter/httpserver"
	"github.com/fossil-proof/proof-pipeline/internal/adapter/observability"
	"github.com/fossil-proof/proof-pipeline/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{"*"}
	}
	if s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func baseMiddleware(r chi.Router, cfg config.Config) {
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func observabilityRoutes(r chi.Router, checks map[string]func(ctx context.Context) error) {
	r.Get("/healthz", httpserver.HealthzHandler())
	r.Get("/readyz", httpserver.ReadyzHandler(checks))
	r.Handle("/metrics", promhttp.Handler())
}

// BuildGatewayRouter constructs the client-facing Gateway's HTTP handler:
// job submission, rate-limited, plus health/readiness/metrics.
func BuildGatewayRouter(cfg config.Config, srv *httpserver.GatewayServer, dbCheck, queueCheck func(ctx context.Context) error) http.Handler {
	r := chi.NewRouter()
	baseMiddleware(r, cfg)

	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		wr.Post("/api/job", srv.SubmitJobHandler())
	})

	observabilityRoutes(r, map[string]func(ctx context.Context) error{
		"db": dbCheck, "queue": queueCheck,
	})

	return httpserver.SecurityHeaders(r)
}

// BuildProvingServiceRouter constructs the Proving Service's internal HTTP
// handler: a single forward-to-queue endpoint, plus health/readiness/metrics.
func BuildProvingServiceRouter(cfg config.Config, srv *httpserver.ProvingServiceServer, queueCheck func(ctx context.Context) error) http.Handler {
	r := chi.NewRouter()
	baseMiddleware(r, cfg)

	r.Post("/internal/jobs", srv.ReceiveJobHandler())

	observabilityRoutes(r, map[string]func(ctx context.Context) error{
		"queue": queueCheck,
	})

	return httpserver.SecurityHeaders(r)
}
