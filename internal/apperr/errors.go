// Package apperr is the error taxonomy of the service: every failure that
// reaches a client carries a stable code, and the code decides the HTTP
// status.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Error is a classified failure.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int { return e.Code.Status() }

// WithDetail returns e with an extra detail attached.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// From classifies an arbitrary error. Context timeouts become QueryTimeout,
// anything unclassified becomes UnknownError.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(QueryTimeout, err, QueryTimeout.Description())
	}
	return Wrap(UnknownError, err, UnknownError.Description())
}

// Envelope is the single error response shape.
type Envelope struct {
	Status    string         `json:"status"`
	ErrorCode Code           `json:"errorCode"`
	Error     string         `json:"error"`
	Category  Category       `json:"category,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Responder logs every error and writes the envelope. Debug controls
// whether internal messages and details leave the process; the code is
// always present.
type Responder struct {
	Debug  bool
	Logger *slog.Logger
}

func NewResponder(debug bool, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{Debug: debug, Logger: logger.With(slog.String("component", "error_handler"))}
}

// Envelope builds the response body for err without writing it.
func (rs *Responder) Envelope(err *Error) Envelope {
	status := err.Status()
	env := Envelope{
		Status:    "error",
		ErrorCode: err.Code,
		Error:     GenericMessage(status),
	}
	if rs.Debug {
		env.Error = err.Message
		env.Category = err.Code.Category()
		env.Details = err.Details
	}
	return env
}

// Log records err server-side regardless of the debug flag.
func (rs *Responder) Log(ctx context.Context, err *Error, attrs ...any) {
	args := []any{
		slog.String("error", err.Error()),
		slog.String("code", string(err.Code)),
		slog.String("category", string(err.Code.Category())),
		slog.Time("timestamp", time.Now().UTC()),
	}
	if len(err.Details) > 0 {
		args = append(args, slog.Any("details", err.Details))
	}
	args = append(args, attrs...)

	if err.Status() >= http.StatusInternalServerError {
		rs.Logger.ErrorContext(ctx, "request failed", args...)
		return
	}
	rs.Logger.WarnContext(ctx, "request rejected", args...)
}

// Write logs err and renders the envelope with the code's status.
func (rs *Responder) Write(w http.ResponseWriter, r *http.Request, err error) {
	e := From(err)
	rs.Log(r.Context(), e,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	render.Status(r, e.Status())
	render.JSON(w, r, rs.Envelope(e))
}
