// Package httpsql talks to the remote SQL execution endpoint over plain HTTP.
//
// Requests are POST {"query": "...", "params": [...]} or
// GET ?query=...&params=[...]. Accepted responses:
//
//	{"status":"success","data":[{...}, ...]}
//	{"status":"success","data":{"affectedRows":1}}
//
// Everything else ({"status":"error","message":...}, {"error":...}, non-JSON,
// non-2xx, unexpected shapes) is an error.
package httpsql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raakeshmj/keygate/internal/store"
)

const maxResponseBytes = 8 << 20

type Client struct {
	endpoint *url.URL
	method   string
	http     *http.Client
}

type Option func(*Client)

// WithMethod selects POST (default) or GET.
func WithMethod(method string) Option {
	return func(c *Client) { c.method = strings.ToUpper(method) }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("httpsql: invalid endpoint %q: expected an absolute URL", endpoint)
	}

	c := &Client{
		endpoint: u,
		method:   http.MethodPost,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.method != http.MethodPost && c.method != http.MethodGet {
		return nil, fmt.Errorf("httpsql: unsupported method %q", c.method)
	}
	return c, nil
}

type request struct {
	Query  string `json:"query"`
	Params []any  `json:"params,omitempty"`
}

type response struct {
	Status       string          `json:"status"`
	Data         json.RawMessage `json:"data"`
	Message      string          `json:"message"`
	Error        string          `json:"error"`
	AffectedRows *int64          `json:"affectedRows"`
}

type writeSummary struct {
	AffectedRows *int64 `json:"affectedRows"`
}

func (c *Client) Exec(ctx context.Context, query string, args ...any) (*store.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &store.Error{Op: "exec", Err: errors.New("query must be a non-empty string")}
	}

	req, err := c.newRequest(ctx, query, store.NormalizeArgs(args))
	if err != nil {
		return nil, &store.Error{Op: "exec", Query: query, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &store.Error{Op: "exec", Query: query, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &store.Error{Op: "read", Query: query, Err: err}
	}

	res, err := parse(resp.StatusCode, body)
	if err != nil {
		return nil, &store.Error{Op: "exec", Query: query, Err: err}
	}
	return res, nil
}

func (c *Client) newRequest(ctx context.Context, query string, params []any) (*http.Request, error) {
	if c.method == http.MethodGet {
		u := *c.endpoint
		q := u.Query()
		q.Set("query", query)
		if len(params) > 0 {
			p, err := json.Marshal(params)
			if err != nil {
				return nil, err
			}
			q.Set("params", string(p))
		}
		u.RawQuery = q.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}

	payload, err := json.Marshal(request{Query: query, Params: params})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func parse(status int, body []byte) (*store.Result, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, errors.New("SQL API returned non-JSON response")
	}

	if status < 200 || status > 299 {
		switch {
		case r.Status == "error" && r.Message != "":
			return nil, fmt.Errorf("SQL API error: %s", r.Message)
		case r.Error != "":
			return nil, fmt.Errorf("SQL API error: %s", r.Error)
		}
		return nil, fmt.Errorf("SQL API error: HTTP %d", status)
	}

	switch r.Status {
	case "success":
		return decodeData(r)
	case "error":
		msg := r.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, fmt.Errorf("SQL API error: %s", msg)
	}
	if r.Error != "" {
		return nil, fmt.Errorf("SQL API error: %s", r.Error)
	}
	return nil, errors.New("SQL API returned an unexpected response shape")
}

func decodeData(r response) (*store.Result, error) {
	res := &store.Result{RowsAffected: -1}
	if r.AffectedRows != nil {
		res.RowsAffected = *r.AffectedRows
	}

	data := bytes.TrimSpace(r.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil, errors.New("SQL API returned an unexpected response shape")
	case data[0] == '[':
		if err := json.Unmarshal(data, &res.Rows); err != nil {
			return nil, fmt.Errorf("SQL API returned malformed rows: %w", err)
		}
	case data[0] == '{':
		var w writeSummary
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("SQL API returned malformed data: %w", err)
		}
		if w.AffectedRows != nil {
			res.RowsAffected = *w.AffectedRows
		}
	default:
		return nil, errors.New("SQL API returned an unexpected response shape")
	}
	return res, nil
}

// Ping runs a trivial statement; used by readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Exec(ctx, "SELECT 1")
	return err
}
