package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogEntry defines the structured audit record. TenantID is the prefix of
// the principal (or of the key for device activations).
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`   // e.g. "key.add", "POST /login"
	Resource  string         `json:"resource"` // path or key
	Status    int            `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Key lifecycle actions.
const (
	ActionRegister  = "user.register"
	ActionLogin     = "user.login"
	ActionKeyAdd    = "key.add"
	ActionKeyDelete = "key.delete"
	ActionKeyReset  = "key.reset"
	ActionActivate  = "key.activate"
)

// Logger interface
type Logger interface {
	Log(entry LogEntry)
}

// JSONLogger writes one JSON document per line to an io.Writer.
type JSONLogger struct {
	mu  sync.Mutex
	out io.Writer
}

func NewJSONLogger(w io.Writer) *JSONLogger {
	return &JSONLogger{out: w}
}

func (l *JSONLogger) Log(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Metadata != nil {
		entry.Metadata = maskSensitive(entry.Metadata)
	}

	bytes, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Audit log error: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(bytes, '\n'))
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Log(LogEntry) {}

var sensitiveKeys = []string{"api_key", "password", "token", "secret", "session", "cookie", "authorization"}

// maskSensitive returns a copy of m with secret-looking values replaced.
func maskSensitive(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
		lowerK := strings.ToLower(k)
		for _, s := range sensitiveKeys {
			if strings.Contains(lowerK, s) {
				out[k] = "***REDACTED***"
				break
			}
		}
	}
	return out
}
