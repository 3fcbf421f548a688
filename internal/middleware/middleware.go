// Package middleware holds the HTTP pipeline of the service: request ids,
// logging, panic recovery, CORS, route policies, the session gate, audit and
// rate limiting.
package middleware

import "net/http"

type Middleware func(http.Handler) http.Handler
