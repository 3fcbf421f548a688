package policy

import (
	"net/http"
	"strings"
	"sync"
)

// Matcher defines criteria to apply a policy
type Matcher struct {
	Method string `json:"method,omitempty"` // "" or "*" matches any
	Path   string `json:"path"`
	Exact  bool   `json:"exact,omitempty"` // otherwise prefix match
}

// Rules defines what to enforce on a route
type Rules struct {
	AuthRequired bool    `json:"auth_required"`
	RateLimit    float64 `json:"rate_limit"` // requests per second, 0 disables limiting
	Burst        int     `json:"burst"`
}

// Policy is a named set of rules
type Policy struct {
	ID      string  `json:"id"`
	Matcher Matcher `json:"matcher"`
	Rules   Rules   `json:"rules"`
}

// Engine evaluates requests against an ordered policy list.
type Engine struct {
	mu       sync.RWMutex
	policies []Policy
	fallback Policy
}

// NewEngine returns an engine that applies fallback when nothing matches.
func NewEngine(fallback Policy) *Engine {
	return &Engine{fallback: fallback}
}

// LoadPolicies replaces the current set
func (e *Engine) LoadPolicies(newPolicies []Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = append([]Policy(nil), newPolicies...)
}

// Evaluate returns the first matching policy, or the fallback.
func (e *Engine) Evaluate(r *http.Request) *Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for i := range e.policies {
		if match(e.policies[i].Matcher, r) {
			p := e.policies[i]
			return &p
		}
	}
	p := e.fallback
	return &p
}

func match(m Matcher, r *http.Request) bool {
	if m.Method != "" && m.Method != "*" && m.Method != r.Method {
		return false
	}
	if m.Exact {
		return r.URL.Path == m.Path
	}
	return strings.HasPrefix(r.URL.Path, m.Path)
}
