// Package store is the boundary to the external SQL execution endpoint.
// Statements use `?` placeholders with positional arguments; rows come back
// as column name to tagged scalar maps.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DateTimeLayout is the textual timestamp form used by the store. Values are
// always UTC.
const DateTimeLayout = "2006-01-02 15:04:05"

// Executor runs one statement. Implementations forward ctx cancellation to
// the outbound call and never retry.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (*Result, error)
}

// Result of a statement. RowsAffected is -1 when the backend did not report it.
type Result struct {
	Rows         []Row
	RowsAffected int64
}

// Row maps column names to values.
type Row map[string]Value

func (r Row) String(col string) (string, bool) { return r[col].String() }
func (r Row) Int(col string) (int64, bool)     { return r[col].Int() }
func (r Row) Time(col string) (time.Time, bool) {
	return r[col].Time()
}

// Error is a store-category failure. The query is truncated when printed.
type Error struct {
	Op    string
	Query string
	Err   error
}

const maxQueryInError = 80

func (e *Error) Error() string {
	return fmt.Sprintf("store %s failed (%s): %v", e.Op, Redact(e.Query), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Redact collapses whitespace and truncates a statement for logs.
func Redact(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > maxQueryInError {
		return q[:maxQueryInError] + "..."
	}
	return q
}

// NormalizeArg converts an argument to the scalar forms both backends accept.
func NormalizeArg(a any) any {
	switch v := a.(type) {
	case nil:
		return nil
	case time.Time:
		return v.UTC().Format(DateTimeLayout)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(DateTimeLayout)
	case *string:
		if v == nil {
			return nil
		}
		return *v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	default:
		return v
	}
}

func NormalizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = NormalizeArg(a)
	}
	return out
}
