package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/raakeshmj/keygate/internal/apperr"
	"github.com/raakeshmj/keygate/internal/audit"
	"github.com/raakeshmj/keygate/internal/db"
	"github.com/raakeshmj/keygate/internal/license"
	"github.com/raakeshmj/keygate/internal/logging"
	"github.com/raakeshmj/keygate/internal/service"
	"github.com/raakeshmj/keygate/internal/session"
)

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type dataResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type tokenResponse struct {
	Status    string `json:"status"`
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

type addKeysResponse struct {
	Status    string           `json:"status"`
	Generated int              `json:"generated"`
	Keys      []service.NewKey `json:"keys"`
}

type deletedResponse struct {
	Status  string `json:"status"`
	Deleted int64  `json:"deleted"`
}

// deviceResponse is sealed before it leaves the process.
type deviceResponse struct {
	Status        string       `json:"status"`
	Message       string       `json:"message"`
	Updated       *int64       `json:"updated,omitempty"`
	CurrentDevice string       `json:"current_device,omitempty"`
	ExpiredAt     *db.DateTime `json:"expired_at,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.responder.Write(w, r, err)
		return
	}

	user, err := s.authService.Register(r.Context(), in)
	if err != nil {
		s.responder.Write(w, r, err)
		return
	}

	s.record(r, audit.ActionRegister, user.Username, user.Prefix, http.StatusOK, nil)
	render.JSON(w, r, dataResponse{Status: "ok", Data: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.responder.Write(w, r, err)
		return
	}

	tok, p, err := s.authService.Login(r.Context(), in, session.CookieTTL)
	if err != nil {
		s.record(r, audit.ActionLogin, in.Username, "", apperr.From(err).Status(), nil)
		s.responder.Write(w, r, err)
		return
	}

	s.record(r, audit.ActionLogin, p.Username, p.Prefix, http.StatusOK, map[string]any{"binding": "cookie"})
	http.SetCookie(w, s.sessions.Cookie(tok))
	render.JSON(w, r, statusResponse{Status: "ok"})
}

// handleToken issues the bearer binding for API and device clients.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.responder.Write(w, r, err)
		return
	}

	tok, p, err := s.authService.Login(r.Context(), in, session.BearerTTL)
	if err != nil {
		s.record(r, audit.ActionLogin, in.Username, "", apperr.From(err).Status(), nil)
		s.responder.Write(w, r, err)
		return
	}

	s.record(r, audit.ActionLogin, p.Username, p.Prefix, http.StatusOK, map[string]any{"binding": "bearer"})
	render.JSON(w, r, tokenResponse{
		Status:    "ok",
		Token:     tok,
		TokenType: "Bearer",
		ExpiresIn: int64(session.BearerTTL / time.Second),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.sessions.ClearCookie())
	render.JSON(w, r, statusResponse{Status: "ok", Message: "Logged out"})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	pg := service.ParsePagination(q.Get("page"), q.Get("pageSize"), q.Get("limit"))

	page, err := s.keyService.List(r.Context(), p, pg)
	if err != nil {
		s.responder.Write(w, r, err)
		return
	}
	render.JSON(w, r, page)
}

func (s *Server) handleAddKey(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	var in service.AddKeysInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.responder.Write(w, r, err)
		return
	}

	keys, err := s.keyService.Add(r.Context(), p, in)
	if err != nil {
		s.responder.Write(w, r, err)
		return
	}

	s.record(r, audit.ActionKeyAdd, p.Username, p.Prefix, http.StatusOK, map[string]any{"generated": len(keys)})
	render.JSON(w, r, addKeysResponse{Status: "ok", Generated: len(keys), Keys: keys})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	s.keyMutation(w, r, audit.ActionKeyDelete, s.keyService.Delete)
}

func (s *Server) handleResetKey(w http.ResponseWriter, r *http.Request) {
	s.keyMutation(w, r, audit.ActionKeyReset, s.keyService.Reset)
}

type keyOp func(ctx context.Context, p *session.Principal, in service.KeyInput) (int64, error)

func (s *Server) keyMutation(w http.ResponseWriter, r *http.Request, action string, op keyOp) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	var in service.KeyInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.responder.Write(w, r, err)
		return
	}

	n, err := op(r.Context(), p, in)
	if err != nil {
		s.responder.Write(w, r, err)
		return
	}

	s.record(r, action, p.Username, p.Prefix, http.StatusOK, map[string]any{"key": in.Key, "affected": n})
	render.JSON(w, r, deletedResponse{Status: "ok", Deleted: n})
}

func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	users, err := s.keyService.Info(r.Context(), p)
	if err != nil {
		s.responder.Write(w, r, err)
		return
	}
	render.JSON(w, r, dataResponse{Status: "ok", Data: users})
}

// handleClientLogin is the device endpoint. The body is a sealed JSON
// document and so is every response once the body has been opened.
func (s *Server) handleClientLogin(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.responder.Write(w, r, err)
		return
	}

	plaintext, err := s.codec.Open(strings.TrimSpace(string(body)))
	if err != nil {
		s.responder.Write(w, r, apperr.Wrap(apperr.InvalidRequestFormat, err, "Invalid encrypted JSON"))
		return
	}

	var in service.DeviceLoginInput
	if err := decodeObject(plaintext, &in); err != nil {
		s.writeSealedError(w, r, err)
		return
	}

	res, err := s.deviceService.Login(r.Context(), in)
	if err != nil {
		s.record(r, audit.ActionActivate, in.IDDevice, "", apperr.From(err).Status(),
			map[string]any{"key": in.Key, "code": string(apperr.From(err).Code)})
		s.writeSealedError(w, r, err)
		return
	}

	s.record(r, audit.ActionActivate, in.IDDevice, "", http.StatusOK,
		map[string]any{"key": in.Key, "outcome": string(res.Outcome)})
	s.writeSealed(w, r, http.StatusOK, deviceResult(res))
}

func deviceResult(res *license.Result) deviceResponse {
	switch res.Outcome {
	case license.OutcomeWrongDevice:
		return deviceResponse{Status: "error", Message: "Wrong device ID", CurrentDevice: res.CurrentDevice}
	case license.OutcomeExpired:
		at := res.ExpiredAt
		return deviceResponse{Status: "error", Message: "License expired", ExpiredAt: &at}
	case license.OutcomeUnknown:
		return deviceResponse{Status: "error", Message: "Unknown error"}
	}
	updated := res.Updated
	return deviceResponse{Status: "ok", Message: string(res.Outcome), Updated: &updated}
}

func (s *Server) writeSealed(w http.ResponseWriter, r *http.Request, status int, v any) {
	sealed, err := s.codec.EncodeJSON(v)
	if err != nil {
		s.responder.Write(w, r, apperr.Wrap(apperr.EncryptionError, err, "failed to seal response"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(sealed))
}

func (s *Server) writeSealedError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	s.responder.Log(r.Context(), e, "method", r.Method, "path", r.URL.Path)
	s.writeSealed(w, r, e.Status(), s.responder.Envelope(e))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, statusResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := s.checkReady(r.Context())
	status := "ok"
	for _, v := range checks {
		if v != "ok" {
			status = "error"
			render.Status(r, http.StatusServiceUnavailable)
			break
		}
	}
	render.JSON(w, r, map[string]any{"status": status, "checks": checks})
}

func (s *Server) principal(w http.ResponseWriter, r *http.Request) (*session.Principal, bool) {
	p, ok := session.PrincipalFrom(r.Context())
	if !ok {
		s.responder.Write(w, r, apperr.New(apperr.Unauthorized, "Unauthorized"))
		return nil, false
	}
	return p, true
}

func (s *Server) record(r *http.Request, action, actor, tenant string, status int, meta map[string]any) {
	s.auditLogger.Log(audit.LogEntry{
		Timestamp: time.Now().UTC(),
		RequestID: logging.RequestID(r.Context()),
		TenantID:  tenant,
		ActorID:   actor,
		Action:    action,
		Resource:  r.URL.Path,
		Status:    status,
		Metadata:  meta,
	})
}
