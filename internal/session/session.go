// Package session defines the session payload and its two transport
// bindings: the `session` cookie for interactive users and the
// `Authorization: Bearer` header for long-lived API and device clients.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/raakeshmj/keygate/internal/token"
)

const (
	CookieName = "session"

	// CookieTTL is used for interactive login; BearerTTL for API clients.
	CookieTTL = 24 * time.Hour
	BearerTTL = 7 * 24 * time.Hour
)

// ErrNoSession covers a missing, malformed, tampered or expired session.
var ErrNoSession = errors.New("no valid session")

// Payload is the sealed session document. Only ExpiresAt of the registered
// claims is set, so the wire form is {"username","prefix","exp"}.
type Payload struct {
	Username string `json:"username"`
	Prefix   string `json:"prefix"`
	jwt.RegisteredClaims
}

// Principal is the authenticated identity for the duration of one request.
// Prefix is the only authorization scope for key and user data.
type Principal struct {
	Username string
	Prefix   string
}

type Options struct {
	SameSite http.SameSite
	Secure   bool
}

// Manager issues and validates session tokens.
type Manager struct {
	codec *token.Codec
	opts  Options
	now   func() time.Time
}

func NewManager(codec *token.Codec, opts Options) *Manager {
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &Manager{codec: codec, opts: opts, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue seals a payload expiring ttl from now.
func (m *Manager) Issue(username, prefix string, ttl time.Duration) (string, error) {
	p := Payload{
		Username: username,
		Prefix:   prefix,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(m.now().Add(ttl)),
		},
	}
	return m.codec.EncodeJSON(p)
}

// Decode opens a token and checks its expiry. A payload whose exp equals the
// current second is still valid.
func (m *Manager) Decode(tok string) (*Principal, error) {
	if tok == "" {
		return nil, ErrNoSession
	}

	var p Payload
	if err := m.codec.DecodeJSON(tok, &p); err != nil {
		return nil, ErrNoSession
	}

	v := jwt.NewValidator(
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Second),
		jwt.WithTimeFunc(func() time.Time { return m.now().Truncate(time.Second) }),
	)
	if err := v.Validate(p); err != nil {
		return nil, ErrNoSession
	}

	return &Principal{Username: p.Username, Prefix: p.Prefix}, nil
}

// Authenticate reads the cookie binding first and falls back to the bearer
// header.
func (m *Manager) Authenticate(r *http.Request) (*Principal, error) {
	if tok := FromCookie(r); tok != "" {
		if p, err := m.Decode(tok); err == nil {
			return p, nil
		}
	}
	return m.Decode(FromBearer(r))
}

// Cookie builds the Set-Cookie for a freshly issued token.
func (m *Manager) Cookie(tok string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: m.opts.SameSite,
		MaxAge:   int(CookieTTL.Seconds()),
	}
}

// ClearCookie expires the session cookie (Max-Age=0).
func (m *Manager) ClearCookie() *http.Cookie {
	c := m.Cookie("")
	c.MaxAge = -1
	return c
}

func FromCookie(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func FromBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}
