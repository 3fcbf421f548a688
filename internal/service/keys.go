package service

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/raakeshmj/keygate/internal/apperr"
	"github.com/raakeshmj/keygate/internal/auth"
	"github.com/raakeshmj/keygate/internal/db"
	"github.com/raakeshmj/keygate/internal/repository"
	"github.com/raakeshmj/keygate/internal/session"
	"github.com/raakeshmj/keygate/internal/validation"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 50
)

type Pagination struct {
	Page     int
	PageSize int
}

func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }

// ParsePagination reads page and pageSize (or limit) query values. Missing or
// non-numeric values fall back to defaults; fractions are floored; page is at
// least 1 and pageSize is clamped to 1..MaxPageSize.
func ParsePagination(page, pageSize, limit string) Pagination {
	p := Pagination{Page: 1, PageSize: DefaultPageSize}

	if n, ok := parseNumber(page); ok {
		p.Page = max(1, n)
	}
	size := pageSize
	if size == "" {
		size = limit
	}
	if n, ok := parseNumber(size); ok {
		p.PageSize = min(max(n, 1), MaxPageSize)
	}
	return p
}

func parseNumber(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	f = math.Floor(f)
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32, true
	case f < math.MinInt32:
		return math.MinInt32, true
	}
	return int(f), true
}

type KeyPage struct {
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
	Data     []*db.Key `json:"data"`
}

type AddKeysInput struct {
	Amount *float64 `json:"amount" validate:"required,gte=1,lte=30"`
	Length *float64 `json:"length" validate:"required,gte=1,lte=30"`
}

type KeyInput struct {
	Key string `json:"key" validate:"required"`
}

// NewKey is a freshly generated, never activated key.
type NewKey struct {
	Key       string  `json:"key"`
	Length    int     `json:"length"`
	Prefix    string  `json:"prefix"`
	TimeStart *string `json:"time_start"`
	TimeEnd   *string `json:"time_end"`
}

// KeyService manages the keys of one prefix. Every call is scoped by the
// principal's prefix.
type KeyService struct {
	keys  repository.KeyRepository
	users repository.UserRepository
}

func NewKeyService(k repository.KeyRepository, u repository.UserRepository) *KeyService {
	return &KeyService{keys: k, users: u}
}

func (s *KeyService) List(ctx context.Context, p *session.Principal, pg Pagination) (*KeyPage, error) {
	keys, err := s.keys.ListKeys(ctx, p.Prefix, pg.PageSize, pg.Offset())
	if err != nil {
		return nil, storeError(err, apperr.SQLQueryFailed, "Failed to list keys")
	}
	if keys == nil {
		keys = []*db.Key{}
	}
	return &KeyPage{Page: pg.Page, PageSize: pg.PageSize, Data: keys}, nil
}

// Add generates amount keys valid for length days and inserts them in one
// statement. The insert is never retried.
func (s *KeyService) Add(ctx context.Context, p *session.Principal, in AddKeysInput) ([]NewKey, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	amount := int(math.Floor(*in.Amount))
	length := int(math.Floor(*in.Length))

	records := make([]*db.Key, 0, amount)
	out := make([]NewKey, 0, amount)
	for i := 0; i < amount; i++ {
		k, err := auth.GenerateKey(p.Prefix, length)
		if err != nil {
			return nil, apperr.Wrap(apperr.UnknownError, err, "failed to generate key")
		}
		records = append(records, &db.Key{Key: k, Length: length, Prefix: p.Prefix})
		out = append(out, NewKey{Key: k, Length: length, Prefix: p.Prefix})
	}

	if err := s.keys.InsertKeys(ctx, records); err != nil {
		return nil, storeError(err, apperr.InsertFailed, "Failed to insert keys")
	}
	return out, nil
}

func (s *KeyService) Delete(ctx context.Context, p *session.Principal, in KeyInput) (int64, error) {
	if err := validation.Struct(in); err != nil {
		return 0, err
	}
	n, err := s.keys.DeleteKey(ctx, p.Prefix, in.Key)
	if err != nil {
		return 0, storeError(err, apperr.DeleteFailed, "Failed to delete key")
	}
	return n, nil
}

// Reset unbinds the device of a key; the activation window is kept.
func (s *KeyService) Reset(ctx context.Context, p *session.Principal, in KeyInput) (int64, error) {
	if err := validation.Struct(in); err != nil {
		return 0, err
	}
	n, err := s.keys.ResetDevice(ctx, p.Prefix, in.Key)
	if err != nil {
		return 0, storeError(err, apperr.UpdateFailed, "Failed to reset key")
	}
	return n, nil
}

// Info lists the users sharing the principal's prefix.
func (s *KeyService) Info(ctx context.Context, p *session.Principal) ([]*db.User, error) {
	users, err := s.users.ListByPrefix(ctx, p.Prefix)
	if err != nil {
		return nil, storeError(err, apperr.SQLQueryFailed, "Failed to load user info")
	}
	if users == nil {
		users = []*db.User{}
	}
	return users, nil
}
