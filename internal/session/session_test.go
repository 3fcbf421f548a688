package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/keygate/internal/token"
)

func newManager(t *testing.T, now time.Time) *Manager {
	t.Helper()
	codec, err := token.New("test-secret")
	require.NoError(t, err)
	return NewManager(codec, Options{Secure: true}).WithClock(func() time.Time { return now })
}

func TestManager_IssueDecode(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newManager(t, now)

	tok, err := m.Issue("alice", "acme", CookieTTL)
	require.NoError(t, err)

	p, err := m.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, &Principal{Username: "alice", Prefix: "acme"}, p)
}

func TestManager_PayloadShape(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec, _ := token.New("test-secret")
	m := NewManager(codec, Options{}).WithClock(func() time.Time { return now })

	tok, err := m.Issue("alice", "acme", time.Hour)
	require.NoError(t, err)

	plaintext, err := codec.Open(tok)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(plaintext, &raw))
	assert.Equal(t, map[string]any{
		"username": "alice",
		"prefix":   "acme",
		"exp":      float64(now.Add(time.Hour).Unix()),
	}, raw)
}

func TestManager_Expiry(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	m := newManager(t, issued)
	tok, err := m.Issue("alice", "acme", 10*time.Second)
	require.NoError(t, err)

	exp := issued.Add(10 * time.Second)

	m.WithClock(func() time.Time { return exp.Add(900 * time.Millisecond) })
	_, err = m.Decode(tok)
	assert.NoError(t, err, "exp equal to the current second is valid")

	m.WithClock(func() time.Time { return exp.Add(time.Second) })
	_, err = m.Decode(tok)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_RejectsForeignToken(t *testing.T) {
	m := newManager(t, time.Now())
	other, _ := token.New("other-secret")
	tok, err := NewManager(other, Options{}).Issue("alice", "acme", time.Hour)
	require.NoError(t, err)

	_, err = m.Decode(tok)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_RejectsMissingExp(t *testing.T) {
	codec, _ := token.New("test-secret")
	m := NewManager(codec, Options{})
	tok, err := codec.EncodeJSON(map[string]string{"username": "alice", "prefix": "acme"})
	require.NoError(t, err)

	_, err = m.Decode(tok)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_Cookie(t *testing.T) {
	m := newManager(t, time.Now())

	c := m.Cookie("tok")
	assert.Equal(t, CookieName, c.Name)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 86400, c.MaxAge)

	cleared := m.ClearCookie()
	assert.Empty(t, cleared.Value)
	assert.Contains(t, cleared.String(), "Max-Age=0")
}

func TestManager_Authenticate(t *testing.T) {
	m := newManager(t, time.Now())
	tok, err := m.Issue("alice", "acme", BearerTTL)
	require.NoError(t, err)

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
		p, err := m.Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, "acme", p.Prefix)
	})

	t.Run("bearer", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		p, err := m.Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, "alice", p.Username)
	})

	t.Run("bad cookie falls back to bearer", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
		r.Header.Set("Authorization", "Bearer "+tok)
		_, err := m.Authenticate(r)
		assert.NoError(t, err)
	})

	for name, setup := range map[string]func(r *http.Request){
		"nothing":          func(r *http.Request) {},
		"malformed cookie": func(r *http.Request) { r.Header.Set("Cookie", ";;=;session") },
		"basic auth":       func(r *http.Request) { r.Header.Set("Authorization", "Basic "+tok) },
		"bare bearer":      func(r *http.Request) { r.Header.Set("Authorization", "Bearer") },
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			setup(r)
			_, err := m.Authenticate(r)
			assert.ErrorIs(t, err, ErrNoSession)
		})
	}
}
