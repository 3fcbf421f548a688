package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Limiter reports whether one more request under key fits in a bucket that
// refills at ratePerSec up to burst tokens.
type Limiter interface {
	Allow(ctx context.Context, key string, ratePerSec float64, burst int) (bool, float64, error)
}

// luaScript implements the token bucket algorithm atomically
// KEYS[1] = rate limit key
// ARGV[1] = capacity (burst size)
// ARGV[2] = refill rate (tokens per second)
// ARGV[3] = current timestamp (unix milliseconds)
// ARGV[4] = requested tokens
// Returns: [allowed (1/0), remaining_tokens as string]
const luaScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local info = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(info[1])
local last_refill = tonumber(info[2])

if not tokens then
	tokens = capacity
	last_refill = now
end

local delta = math.max(0, now - last_refill) / 1000
local filled = math.min(capacity, tokens + (delta * rate))

local allowed = 0
if filled >= requested then
	allowed = 1
	filled = filled - requested
end

redis.call("HSET", key, "tokens", filled, "last_refill", now)
redis.call("EXPIRE", key, 60)

return {allowed, tostring(filled)}
`

type TokenBucketLimiter struct {
	client redis.Cmdable
}

func NewTokenBucketLimiter(client redis.Cmdable) *TokenBucketLimiter {
	return &TokenBucketLimiter{client: client}
}

// Allow checks if the request is allowed.
// ratePerSec: tokens per second
// burst: maximum capacity
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string, ratePerSec float64, burst int) (bool, float64, error) {
	now := time.Now().UnixMilli()

	result, err := l.client.Eval(ctx, luaScript, []string{key}, burst, ratePerSec, now, 1).Slice()
	if err != nil {
		return false, 0, err
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("limiter: unexpected script result %v", result)
	}

	allowed, _ := result[0].(int64)
	var remaining float64
	if s, ok := result[1].(string); ok {
		remaining, _ = strconv.ParseFloat(s, 64)
	}

	if allowed != 1 {
		return false, remaining, ErrRateLimitExceeded
	}
	return true, remaining, nil
}

// LocalLimiter keeps one bucket per key in process. Used when redis is not
// configured; limits are then per instance.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	max     int
}

func NewLocalLimiter(maxKeys int) *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*rate.Limiter), max: maxKeys}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string, ratePerSec float64, burst int) (bool, float64, error) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok || b.Limit() != rate.Limit(ratePerSec) || b.Burst() != burst {
		if len(l.buckets) >= l.max {
			// Crude bound on memory; buckets refill quickly anyway.
			l.buckets = make(map[string]*rate.Limiter)
		}
		b = rate.NewLimiter(rate.Limit(ratePerSec), burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	if !b.Allow() {
		return false, b.Tokens(), ErrRateLimitExceeded
	}
	return true, b.Tokens(), nil
}
