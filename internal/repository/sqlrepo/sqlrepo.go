// Package sqlrepo implements the repositories over a store.Executor with
// parameterized statements.
package sqlrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raakeshmj/keygate/internal/db"
	"github.com/raakeshmj/keygate/internal/repository"
	"github.com/raakeshmj/keygate/internal/store"
)

const (
	qInsertUser     = "INSERT INTO `users`(`username`, `password`, `prefix`) VALUES (?, ?, ?)"
	qUserByName     = "SELECT * FROM `users` WHERE `username` = ? LIMIT 1"
	qTouchLastLogin = "UPDATE `users` SET `last_login` = ? WHERE `username` = ?"
	qUsersByPrefix  = "SELECT `id`, `username`, `prefix`, `last_login` FROM `users` WHERE `prefix` = ?"

	qListKeys    = "SELECT * FROM `ukeys` WHERE `prefix` = ? ORDER BY `id_key` ASC LIMIT ? OFFSET ?"
	qInsertKeys  = "INSERT INTO `ukeys`(`key`, `length`, `prefix`) VALUES "
	qDeleteKey   = "DELETE FROM `ukeys` WHERE `key` = ? AND `prefix` = ?"
	qResetDevice = "UPDATE `ukeys` SET `id_device` = NULL WHERE `key` = ? AND `prefix` = ?"
	qKeyByKey    = "SELECT `id_key`, `key`, `length`, `prefix`, `id_device`, `time_start`, `time_end` FROM `ukeys` WHERE `key` = ? LIMIT 1"
	qActivate    = "UPDATE `ukeys` SET `time_start` = ?, `time_end` = ?, `id_device` = ? WHERE `key` = ? AND `time_start` IS NULL"
	qBindDevice  = "UPDATE `ukeys` SET `id_device` = ? WHERE `key` = ? AND `time_start` IS NOT NULL AND (`id_device` IS NULL OR `id_device` = '')"
)

type Repository struct {
	exec store.Executor
}

func New(exec store.Executor) *Repository {
	return &Repository{exec: exec}
}

// User Repo Implementation
func (r *Repository) CreateUser(ctx context.Context, user *db.User) error {
	_, err := r.exec.Exec(ctx, qInsertUser, user.Username, user.Password, user.Prefix)
	if err != nil && strings.Contains(err.Error(), "Duplicate entry") {
		return fmt.Errorf("%w: %w", repository.ErrDuplicate, err)
	}
	return err
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (*db.User, error) {
	res, err := r.exec.Exec(ctx, qUserByName, username)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, repository.ErrNotFound
	}
	return userFromRow(res.Rows[0]), nil
}

func (r *Repository) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	_, err := r.exec.Exec(ctx, qTouchLastLogin, at, username)
	return err
}

func (r *Repository) ListByPrefix(ctx context.Context, prefix string) ([]*db.User, error) {
	res, err := r.exec.Exec(ctx, qUsersByPrefix, prefix)
	if err != nil {
		return nil, err
	}
	users := make([]*db.User, 0, len(res.Rows))
	for _, row := range res.Rows {
		users = append(users, userFromRow(row))
	}
	return users, nil
}

// Key Repo Implementation
func (r *Repository) ListKeys(ctx context.Context, prefix string, limit, offset int) ([]*db.Key, error) {
	res, err := r.exec.Exec(ctx, qListKeys, prefix, limit, offset)
	if err != nil {
		return nil, err
	}
	keys := make([]*db.Key, 0, len(res.Rows))
	for _, row := range res.Rows {
		keys = append(keys, keyFromRow(row))
	}
	return keys, nil
}

// InsertKeys writes all keys in one statement.
func (r *Repository) InsertKeys(ctx context.Context, keys []*db.Key) error {
	if len(keys) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(qInsertKeys)
	args := make([]any, 0, len(keys)*3)
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, k.Key, k.Length, k.Prefix)
	}
	_, err := r.exec.Exec(ctx, sb.String(), args...)
	return err
}

func (r *Repository) DeleteKey(ctx context.Context, prefix, key string) (int64, error) {
	return r.affected(ctx, qDeleteKey, key, prefix)
}

func (r *Repository) ResetDevice(ctx context.Context, prefix, key string) (int64, error) {
	return r.affected(ctx, qResetDevice, key, prefix)
}

func (r *Repository) GetKey(ctx context.Context, key string) (*db.Key, error) {
	res, err := r.exec.Exec(ctx, qKeyByKey, key)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, repository.ErrNotFound
	}
	return keyFromRow(res.Rows[0]), nil
}

func (r *Repository) Activate(ctx context.Context, key, device string, start, end time.Time) (bool, error) {
	res, err := r.exec.Exec(ctx, qActivate, start, end, device, key)
	if err != nil {
		return false, err
	}
	if res.RowsAffected >= 0 {
		return res.RowsAffected > 0, nil
	}

	// Backend did not report a count; the row tells us who won.
	k, err := r.GetKey(ctx, key)
	if err != nil {
		return false, err
	}
	return k.Device() == device && k.TimeStart.Valid && k.TimeStart.Equal(start.UTC().Truncate(time.Second)), nil
}

func (r *Repository) BindDevice(ctx context.Context, key, device string) (bool, error) {
	res, err := r.exec.Exec(ctx, qBindDevice, device, key)
	if err != nil {
		return false, err
	}
	if res.RowsAffected >= 0 {
		return res.RowsAffected > 0, nil
	}

	k, err := r.GetKey(ctx, key)
	if err != nil {
		return false, err
	}
	return k.Device() == device, nil
}

func (r *Repository) affected(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected < 0 {
		return 0, nil
	}
	return res.RowsAffected, nil
}

func userFromRow(row store.Row) *db.User {
	u := &db.User{}
	u.ID, _ = row.Int("id")
	u.Username, _ = row.String("username")
	u.Password, _ = row.String("password")
	u.Prefix, _ = row.String("prefix")
	u.LastLogin = dateTime(row, "last_login")
	return u
}

func keyFromRow(row store.Row) *db.Key {
	k := &db.Key{}
	k.IDKey, _ = row.Int("id_key")
	k.Key, _ = row.String("key")
	length, _ := row.Int("length")
	k.Length = int(length)
	k.Prefix, _ = row.String("prefix")
	if d, ok := row.String("id_device"); ok && d != "" {
		k.IDDevice = &d
	}
	k.TimeStart = dateTime(row, "time_start")
	k.TimeEnd = dateTime(row, "time_end")
	return k
}

func dateTime(row store.Row, col string) db.DateTime {
	if t, ok := row.Time(col); ok {
		return db.At(t)
	}
	return db.DateTime{}
}

// Interface check
var _ repository.UserRepository = (*Repository)(nil)
var _ repository.KeyRepository = (*Repository)(nil)
