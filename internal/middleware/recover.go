package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/raakeshmj/keygate/internal/apperr"
)

// Recoverer turns a handler panic into a 0x400 response.
func Recoverer(rs *apperr.Responder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := apperr.Wrap(apperr.UnknownError, fmt.Errorf("panic: %v", rec), "Internal server error").
					WithDetail("stack", string(debug.Stack()))
				rs.Write(w, r, err)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
