package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnavailable is returned while the breaker refuses store calls.
var ErrUnavailable = errors.New("store temporarily unavailable")

// Breaker runs an action unless the circuit for name is open.
type Breaker interface {
	Execute(ctx context.Context, name string, action func() error) error
}

// Observer receives the outcome of every store call.
type Observer interface {
	ObserveStore(op string, d time.Duration, err error)
}

type guarded struct {
	next     Executor
	breaker  Breaker
	name     string
	observer Observer
	isOpen   func(error) bool
}

// Guard wraps next with a circuit breaker and an optional observer. isOpen
// reports whether an error from the breaker means the circuit is open.
func Guard(next Executor, b Breaker, name string, isOpen func(error) bool, o Observer) Executor {
	return &guarded{next: next, breaker: b, name: name, observer: o, isOpen: isOpen}
}

func (g *guarded) Exec(ctx context.Context, query string, args ...any) (*Result, error) {
	start := time.Now()

	var res *Result
	var execErr error
	run := func() error {
		res, execErr = g.next.Exec(ctx, query, args...)
		return execErr
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(ctx, g.name, run)
		if err != nil && execErr == nil && g.isOpen != nil && g.isOpen(err) {
			err = &Error{Op: "exec", Query: query, Err: ErrUnavailable}
		}
	} else {
		err = run()
	}

	if g.observer != nil {
		g.observer.ObserveStore(verb(query), time.Since(start), err)
	}
	return res, err
}

func verb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
