package apperr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode_Status(t *testing.T) {
	tests := []struct {
		code   Code
		status int
		cat    Category
	}{
		{Unauthorized, http.StatusUnauthorized, CategoryAuthentication},
		{InvalidCredentials, http.StatusUnauthorized, CategoryAuthentication},
		{MissingFields, http.StatusBadRequest, CategoryValidation},
		{InvalidKeyType, http.StatusBadRequest, CategoryValidation},
		{SQLQueryFailed, http.StatusBadGateway, CategoryStore},
		{JSONParseError, http.StatusBadRequest, CategoryParsing},
		{UnknownError, http.StatusInternalServerError, CategoryInternal},
		{KeyNotFound, http.StatusNotFound, CategoryNotFound},
		{RateLimitExceeded, http.StatusTooManyRequests, CategoryRateLimit},
		{Code("bogus"), http.StatusInternalServerError, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.cat, tt.code.Category())
			assert.Equal(t, tt.status, tt.code.Status())
		})
	}
}

func TestCode_Description(t *testing.T) {
	assert.Equal(t, "Key not found", KeyNotFound.Description())
	assert.Equal(t, "Unknown error", Code("0x999").Description())
}

func TestFrom(t *testing.T) {
	e := New(InvalidAmountValue, "amount must be an integer between 1 and 30")
	wrapped := fmt.Errorf("handler: %w", e)
	assert.Same(t, e, From(wrapped))

	assert.Equal(t, QueryTimeout, From(context.DeadlineExceeded).Code)
	assert.Equal(t, UnknownError, From(errors.New("boom")).Code)
}

func TestResponder_Write(t *testing.T) {
	storeErr := Wrap(SQLQueryFailed, errors.New("upstream said no"), "SQL API error: upstream said no").
		WithDetail("query", "SELECT ...")

	t.Run("debug", func(t *testing.T) {
		var logs bytes.Buffer
		rs := NewResponder(true, slog.New(slog.NewJSONHandler(&logs, nil)))

		rec := httptest.NewRecorder()
		rs.Write(rec, httptest.NewRequest(http.MethodGet, "/get-key", nil), storeErr)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		var env Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, SQLQueryFailed, env.ErrorCode)
		assert.Equal(t, "SQL API error: upstream said no", env.Error)
		assert.Equal(t, CategoryStore, env.Category)
		assert.Equal(t, "SELECT ...", env.Details["query"])

		assert.Contains(t, logs.String(), `"code":"0x200"`)
	})

	t.Run("production", func(t *testing.T) {
		var logs bytes.Buffer
		rs := NewResponder(false, slog.New(slog.NewJSONHandler(&logs, nil)))

		rec := httptest.NewRecorder()
		rs.Write(rec, httptest.NewRequest(http.MethodGet, "/get-key", nil), storeErr)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		var env map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, map[string]any{
			"status":    "error",
			"errorCode": "0x200",
			"error":     "Bad Gateway",
		}, env)

		assert.Contains(t, logs.String(), "upstream said no", "errors are logged regardless of debug")
	})

	t.Run("unclassified", func(t *testing.T) {
		rs := NewResponder(false, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
		rec := httptest.NewRecorder()
		rs.Write(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("nil map"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), `"errorCode":"0x400"`)
	})
}
