package middleware

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/raakeshmj/keygate/internal/apperr"
	"github.com/raakeshmj/keygate/internal/limiter"
	"github.com/raakeshmj/keygate/internal/reliability"
	"github.com/raakeshmj/keygate/internal/session"
)

// RateLimit applies the token bucket of the route policy. Authenticated
// requests are keyed by username, others by client IP. When the limiter
// backend fails the request is let through.
func RateLimit(l limiter.Limiter, rs *apperr.Responder, logger *slog.Logger, onLimited func(route string)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPolicy(r.Context())
			if p == nil || p.Rules.RateLimit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			rate, burst := p.Rules.RateLimit, p.Rules.Burst

			key := "ratelimit:" + p.ID + ":ip:" + clientIP(r)
			if principal, ok := session.PrincipalFrom(r.Context()); ok {
				key = "ratelimit:" + p.ID + ":user:" + principal.Username
			}

			allowed, remaining, err := l.Allow(r.Context(), key, rate, burst)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(remaining)))

			if err != nil && !errors.Is(err, limiter.ErrRateLimitExceeded) {
				if reliability.ShouldAllow(reliability.FailOpen, err) {
					logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
						slog.String("error", err.Error()))
					next.ServeHTTP(w, r)
					return
				}
				rs.Write(w, r, apperr.Wrap(apperr.UnknownError, err, "rate limiter unavailable"))
				return
			}

			if !allowed {
				if onLimited != nil {
					onLimited(p.ID)
				}
				w.Header().Set("Retry-After", "1")
				rs.Write(w, r, apperr.New(apperr.RateLimitExceeded, "Rate limit exceeded").
					WithDetail("limit", burst))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
