package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Recorder receives one observation per request.
type Recorder interface {
	Record(method, route string, statusCode int, duration time.Duration)
}

// MetricsMiddleware labels requests by chi route pattern; paths that match
// no route share the "unmatched" label.
func MetricsMiddleware(collector Recorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			collector.Record(r.Method, route, status(ww), time.Since(start))
		})
	}
}
