package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raakeshmj/keygate/internal/reliability"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Redis Keys:
// cb:{service}:failures -> consecutive failures
// cb:{service}:open     -> present while the circuit is open (TTL = cooldown)
//
// State is shared by every instance pointing at the same redis.
type CircuitBreaker struct {
	client           redis.Cmdable
	failureThreshold int64
	cooldown         time.Duration
	strategy         reliability.FailureStrategy
	logger           *slog.Logger
}

func New(client redis.Cmdable, failureThreshold int64, cooldown time.Duration, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		client:           client,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		strategy:         reliability.FailOpen,
		logger:           logger.With(slog.String("component", "circuit_breaker")),
	}
}

// WithStrategy sets what happens when redis itself is unreachable.
func (cb *CircuitBreaker) WithStrategy(s reliability.FailureStrategy) *CircuitBreaker {
	cb.strategy = s
	return cb
}

// IsOpen reports whether err was produced by an open circuit.
func IsOpen(err error) bool { return errors.Is(err, ErrCircuitOpen) }

// Execute runs action unless the circuit for serviceName is open. Failures
// of action count towards tripping it; a success resets the count.
// Cancellation by the caller is not counted.
func (cb *CircuitBreaker) Execute(ctx context.Context, serviceName string, action func() error) error {
	openKey := "cb:" + serviceName + ":open"
	failureKey := "cb:" + serviceName + ":failures"

	open, err := cb.client.Exists(ctx, openKey).Result()
	if err != nil {
		if !reliability.ShouldAllow(cb.strategy, err) {
			return err
		}
		cb.logger.WarnContext(ctx, "breaker state unavailable, allowing call",
			slog.String("service", serviceName), slog.String("error", err.Error()))
		return action()
	}
	if open > 0 {
		return ErrCircuitOpen
	}

	opErr := action()
	if opErr != nil {
		if errors.Is(opErr, context.Canceled) {
			return opErr
		}
		failures, err := cb.client.Incr(ctx, failureKey).Result()
		if err == nil && failures >= cb.failureThreshold {
			cb.client.Set(ctx, openKey, "1", cb.cooldown)
			cb.client.Del(ctx, failureKey)
			cb.logger.WarnContext(ctx, "circuit opened",
				slog.String("service", serviceName),
				slog.Int64("failures", failures),
				slog.Duration("cooldown", cb.cooldown))
		}
		return opErr
	}

	cb.client.Del(ctx, failureKey)
	return nil
}
