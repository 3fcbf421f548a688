package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOpen = errors.New("open")

type fakeExec struct {
	calls int
	err   error
}

func (f *fakeExec) Exec(ctx context.Context, query string, args ...any) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Result{RowsAffected: 1}, nil
}

type fakeBreaker struct{ open bool }

func (b *fakeBreaker) Execute(ctx context.Context, name string, action func() error) error {
	if b.open {
		return errOpen
	}
	return action()
}

type observed struct {
	op  string
	err error
}

type fakeObserver struct{ got []observed }

func (o *fakeObserver) ObserveStore(op string, d time.Duration, err error) {
	o.got = append(o.got, observed{op, err})
}

func TestGuard_PassesThrough(t *testing.T) {
	next := &fakeExec{}
	obs := &fakeObserver{}
	g := Guard(next, &fakeBreaker{}, "sql", func(err error) bool { return errors.Is(err, errOpen) }, obs)

	res, err := g.Exec(context.Background(), "UPDATE t SET a = 1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RowsAffected)
	assert.Equal(t, []observed{{"update", nil}}, obs.got)
}

func TestGuard_OpenCircuit(t *testing.T) {
	next := &fakeExec{}
	g := Guard(next, &fakeBreaker{open: true}, "sql", func(err error) bool { return errors.Is(err, errOpen) }, nil)

	_, err := g.Exec(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrUnavailable)
	var se *Error
	assert.ErrorAs(t, err, &se)
	assert.Zero(t, next.calls)
}

func TestGuard_ExecErrorKept(t *testing.T) {
	boom := &Error{Op: "exec", Err: errors.New("boom")}
	g := Guard(&fakeExec{err: boom}, nil, "sql", nil, nil)

	_, err := g.Exec(context.Background(), "SELECT 1")
	assert.Same(t, boom, err)
}
