package repository

import (
	"context"
	"errors"
	"time"

	"github.com/raakeshmj/keygate/internal/db"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *db.User) error
	GetByUsername(ctx context.Context, username string) (*db.User, error)
	TouchLastLogin(ctx context.Context, username string, at time.Time) error
	ListByPrefix(ctx context.Context, prefix string) ([]*db.User, error)
}

// KeyRepository methods that take a prefix never touch rows of another prefix.
type KeyRepository interface {
	ListKeys(ctx context.Context, prefix string, limit, offset int) ([]*db.Key, error)
	InsertKeys(ctx context.Context, keys []*db.Key) error
	DeleteKey(ctx context.Context, prefix, key string) (int64, error)
	ResetDevice(ctx context.Context, prefix, key string) (int64, error)

	GetKey(ctx context.Context, key string) (*db.Key, error)
	// Activate sets the activation window and binds device only while the
	// key has never been activated. It reports whether this call won.
	Activate(ctx context.Context, key, device string, start, end time.Time) (bool, error)
	// BindDevice binds device only while the key is activated and unbound.
	BindDevice(ctx context.Context, key, device string) (bool, error)
}
