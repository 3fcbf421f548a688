package policy

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngine_Evaluate(t *testing.T) {
	e := NewEngine(Policy{ID: "default", Rules: Rules{AuthRequired: true}})
	e.LoadPolicies([]Policy{
		{ID: "login", Matcher: Matcher{Path: "/login", Exact: true}, Rules: Rules{RateLimit: 1, Burst: 5}},
		{ID: "device", Matcher: Matcher{Method: "POST", Path: "/login-client", Exact: true}, Rules: Rules{RateLimit: 5, Burst: 10}},
		{ID: "health", Matcher: Matcher{Path: "/health"}},
	})

	tests := []struct {
		method, path, want string
	}{
		{"POST", "/login", "login"},
		{"POST", "/login-client", "device"},
		{"GET", "/login-client", "default"},
		{"GET", "/health", "health"},
		{"GET", "/healthz", "health"},
		{"GET", "/get-key", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			p := e.Evaluate(httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, p.ID)
		})
	}
}

func TestEngine_ReturnsCopies(t *testing.T) {
	e := NewEngine(Policy{ID: "default", Rules: Rules{AuthRequired: true}})
	p := e.Evaluate(httptest.NewRequest("GET", "/x", nil))
	p.Rules.AuthRequired = false

	assert.True(t, e.Evaluate(httptest.NewRequest("GET", "/x", nil)).Rules.AuthRequired)
}
