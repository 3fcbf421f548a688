// Package lock provides short-lived per-key mutual exclusion across
// service instances.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires a lock on name. The returned release func is safe to call
// once the lock has expired.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// releaseScript deletes the lock only if we still own it.
// KEYS[1] = lock key
// ARGV[1] = owner token
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedisLocker holds locks for ttl and waits up to wait to acquire one.
func NewRedisLocker(client redis.Cmdable, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, wait: wait, retry: 25 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), error) {
	key := "lock:" + name
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// Detached so a cancelled request still frees the lock.
				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				l.client.Eval(rctx, releaseScript, []string{key}, token)
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Noop never blocks. Used when redis is not configured; the conditional
// store updates still keep activation correct.
type Noop struct{}

func (Noop) Acquire(ctx context.Context, name string) (func(), error) {
	return func() {}, nil
}
