package service

import (
	"context"
	"errors"
	"time"

	"github.com/raakeshmj/keygate/internal/apperr"
	"github.com/raakeshmj/keygate/internal/auth"
	"github.com/raakeshmj/keygate/internal/db"
	"github.com/raakeshmj/keygate/internal/repository"
	"github.com/raakeshmj/keygate/internal/session"
	"github.com/raakeshmj/keygate/internal/store"
	"github.com/raakeshmj/keygate/internal/validation"
)

type RegisterInput struct {
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,password"`
	Prefix   string `json:"prefix" validate:"required,prefix"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthService struct {
	userRepo repository.UserRepository
	sessions *session.Manager
	now      func() time.Time
}

func NewAuthService(u repository.UserRepository, sessions *session.Manager) *AuthService {
	return &AuthService{
		userRepo: u,
		sessions: sessions,
		now:      time.Now,
	}
}

// Register validates the input and stores the user with a bcrypt hash.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*db.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.EncryptionError, err, "failed to hash password")
	}

	user := &db.User{Username: in.Username, Password: hash, Prefix: in.Prefix}
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Wrap(apperr.InsertFailed, err, "Username already exists").WithDetail("username", in.Username)
		}
		return nil, storeError(err, apperr.InsertFailed, "Failed to register user")
	}
	return user, nil
}

// Login verifies credentials, records the login time and issues a session
// token valid for ttl. The prefix in the token comes from the stored user.
func (s *AuthService) Login(ctx context.Context, in LoginInput, ttl time.Duration) (string, *session.Principal, error) {
	if err := validation.Struct(in); err != nil {
		return "", nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, in.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, apperr.New(apperr.InvalidCredentials, "Invalid credentials")
	}
	if err != nil {
		return "", nil, storeError(err, apperr.SQLQueryFailed, "Failed to look up user")
	}
	if !auth.CheckPassword(in.Password, user.Password) {
		return "", nil, apperr.New(apperr.InvalidCredentials, "Invalid credentials")
	}

	if err := s.userRepo.TouchLastLogin(ctx, user.Username, s.now()); err != nil {
		return "", nil, storeError(err, apperr.UpdateFailed, "Failed to update last login")
	}

	tok, err := s.sessions.Issue(user.Username, user.Prefix, ttl)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.EncryptionError, err, "failed to issue session")
	}
	return tok, &session.Principal{Username: user.Username, Prefix: user.Prefix}, nil
}

// storeError classifies a repository failure. Already classified errors and
// timeouts keep their codes.
func storeError(err error, code apperr.Code, message string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.From(err)
	}
	if errors.Is(err, store.ErrUnavailable) {
		return apperr.Wrap(apperr.DatabaseConnectionFailed, err, "Store temporarily unavailable")
	}
	return apperr.Wrap(code, err, message)
}
