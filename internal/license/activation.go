// Package license decides and applies device activation of license keys.
//
// A login attempt with (key, device) is evaluated in a fixed order, first
// match wins:
//
//  1. wrong device: another device is bound; rejected
//  2. expired: time_end is in the past; rejected
//  3. first activation: never activated; window starts now and device is bound
//  4. rebind: activated but no device bound; device is bound
//  5. welcome back: same device, window still open; nothing changes
//  6. unknown: anything else; rejected
package license

import (
	"context"
	"errors"
	"time"

	"github.com/raakeshmj/keygate/internal/apperr"
	"github.com/raakeshmj/keygate/internal/db"
	"github.com/raakeshmj/keygate/internal/lock"
	"github.com/raakeshmj/keygate/internal/repository"
)

type Outcome string

const (
	OutcomeWrongDevice Outcome = "wrong_device"
	OutcomeExpired     Outcome = "expired"
	OutcomeFirstLogin  Outcome = "first_login"
	OutcomeResetDevice Outcome = "reset_device"
	OutcomeWelcomeBack Outcome = "welcome_back"
	OutcomeUnknown     Outcome = "unknown"
	OutcomeNotFound    Outcome = "not_found"
)

// Rejected reports whether the outcome refuses the device.
func (o Outcome) Rejected() bool {
	switch o {
	case OutcomeFirstLogin, OutcomeResetDevice, OutcomeWelcomeBack:
		return false
	}
	return true
}

// Decision is the pure evaluation of a key against a device at an instant.
// Start and End are set only for OutcomeFirstLogin.
type Decision struct {
	Outcome Outcome
	Start   time.Time
	End     time.Time
}

// Decide evaluates k for device at now. It never mutates k.
func Decide(k *db.Key, device string, now time.Time) Decision {
	now = now.UTC().Truncate(time.Second)
	bound := k.Device()

	switch {
	case bound != "" && bound != device:
		return Decision{Outcome: OutcomeWrongDevice}
	case k.TimeEnd.Valid && k.TimeEnd.Before(now):
		return Decision{Outcome: OutcomeExpired}
	case !k.TimeStart.Valid:
		return Decision{Outcome: OutcomeFirstLogin, Start: now, End: now.AddDate(0, 0, k.Length)}
	case bound == "":
		return Decision{Outcome: OutcomeResetDevice}
	case bound == device && (!k.TimeEnd.Valid || !k.TimeEnd.Before(now)):
		return Decision{Outcome: OutcomeWelcomeBack}
	}
	return Decision{Outcome: OutcomeUnknown}
}

// Result of an activation attempt. Updated is the number of rows the
// attempt changed (0 or 1).
type Result struct {
	Outcome       Outcome
	Updated       int64
	CurrentDevice string
	ExpiredAt     db.DateTime
}

const defaultAttempts = 3

type Activator struct {
	keys     repository.KeyRepository
	locker   lock.Locker
	now      func() time.Time
	attempts int
	observe  func(Outcome)
}

type Option func(*Activator)

func WithClock(now func() time.Time) Option {
	return func(a *Activator) { a.now = now }
}

func WithLocker(l lock.Locker) Option {
	return func(a *Activator) { a.locker = l }
}

// WithObserver is called once per finished attempt with its outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(a *Activator) { a.observe = fn }
}

func NewActivator(keys repository.KeyRepository, opts ...Option) *Activator {
	a := &Activator{
		keys:     keys,
		locker:   lock.Noop{},
		now:      time.Now,
		attempts: defaultAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Activate runs the state machine for key and device. Mutations are
// conditional updates; a lost race re-reads the key and decides again.
func (a *Activator) Activate(ctx context.Context, key, device string) (*Result, error) {
	release, err := a.locker.Acquire(ctx, "activation:"+key)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, apperr.Wrap(apperr.TooManyRequests, err, "Activation already in progress for this key")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Lock backend down; conditional updates still protect the record.
		release = func() {}
	}
	defer release()

	for attempt := 0; attempt < a.attempts; attempt++ {
		res, done, err := a.step(ctx, key, device)
		if err != nil {
			return nil, err
		}
		if done {
			if a.observe != nil {
				a.observe(res.Outcome)
			}
			return res, nil
		}
	}
	return nil, apperr.New(apperr.UpdateFailed, "Key changed concurrently during activation")
}

func (a *Activator) step(ctx context.Context, key, device string) (*Result, bool, error) {
	k, err := a.keys.GetKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		if a.observe != nil {
			a.observe(OutcomeNotFound)
		}
		return nil, false, apperr.New(apperr.KeyNotFound, "Key not found").WithDetail("key", key)
	}
	if err != nil {
		return nil, false, err
	}

	d := Decide(k, device, a.now())
	res := &Result{Outcome: d.Outcome}

	switch d.Outcome {
	case OutcomeWrongDevice:
		res.CurrentDevice = k.Device()
	case OutcomeExpired:
		res.ExpiredAt = k.TimeEnd
	case OutcomeFirstLogin:
		won, err := a.keys.Activate(ctx, key, device, d.Start, d.End)
		if err != nil || !won {
			return nil, false, err
		}
		res.Updated = 1
	case OutcomeResetDevice:
		won, err := a.keys.BindDevice(ctx, key, device)
		if err != nil || !won {
			return nil, false, err
		}
		res.Updated = 1
	}
	return res, true, nil
}
