package middleware

import (
	"net/http"

	"github.com/raakeshmj/keygate/internal/apperr"
	"github.com/raakeshmj/keygate/internal/session"
)

// Authenticator resolves the principal of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*session.Principal, error)
}

// AuthMiddleware attaches the principal to the request context. Routes whose
// policy requires auth are refused with 0x001 when there is none; the cause
// is never reported.
func AuthMiddleware(authn Authenticator, rs *apperr.Responder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authRequired := true
			if p := GetPolicy(r.Context()); p != nil {
				authRequired = p.Rules.AuthRequired
			}

			principal, err := authn.Authenticate(r)
			if err != nil {
				if authRequired {
					rs.Write(w, r, apperr.New(apperr.Unauthorized, "Unauthorized"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := session.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
