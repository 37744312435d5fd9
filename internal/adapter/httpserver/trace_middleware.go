// Package httpserver contains HTTP handlers and middleware.
//
// It provides the Gateway's and Proving Service's REST API endpoints:
// job submission, forwarding, and health/readiness/metrics surfaces.
// The package follows clean architecture principles and provides
// a clear separation between HTTP concerns and business logic.
package httpserver

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TraceMiddleware starts a span for each HTTP request, named by method and
// route path, via otelhttp's instrumented handler wrapper.
func TraceMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
