package middleware

import (
	"context"
	"net/http"

	"github.com/raakeshmj/keygate/internal/policy"
)

type policyKey struct{}

// PolicyEnforcer resolves the route policy once per request. Later stages
// (auth gate, rate limiter) read it with GetPolicy.
func PolicyEnforcer(engine *policy.Engine) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithPolicy(r.Context(), engine.Evaluate(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithPolicy(ctx context.Context, p *policy.Policy) context.Context {
	return context.WithValue(ctx, policyKey{}, p)
}

// GetPolicy returns nil outside PolicyEnforcer.
func GetPolicy(ctx context.Context) *policy.Policy {
	p, _ := ctx.Value(policyKey{}).(*policy.Policy)
	return p
}
