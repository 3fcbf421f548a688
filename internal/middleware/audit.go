package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/raakeshmj/keygate/internal/audit"
	"github.com/raakeshmj/keygate/internal/logging"
	"github.com/raakeshmj/keygate/internal/session"
)

// AuditMiddleware records one entry per request. It must run after
// AuthMiddleware so the principal is visible.
func AuditMiddleware(logger audit.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			actorID, tenantID := "anonymous", ""
			if p, ok := session.PrincipalFrom(r.Context()); ok {
				actorID, tenantID = p.Username, p.Prefix
			}

			logger.Log(audit.LogEntry{
				Timestamp: start.UTC(),
				RequestID: logging.RequestID(r.Context()),
				TenantID:  tenantID,
				ActorID:   actorID,
				Action:    r.Method + " " + routePattern(r),
				Resource:  r.URL.Path,
				Status:    status(ww),
				Metadata: map[string]any{
					"remote_addr": r.RemoteAddr,
					"duration_ms": time.Since(start).Milliseconds(),
				},
			})
		})
	}
}

func status(ww chimw.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
