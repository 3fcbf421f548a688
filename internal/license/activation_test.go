package license

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/keygate/internal/apperr"
	"github.com/raakeshmj/keygate/internal/db"
	"github.com/raakeshmj/keygate/internal/lock"
	"github.com/raakeshmj/keygate/internal/repository"
	"github.com/raakeshmj/keygate/internal/repository/memory"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func dev(s string) *string { return &s }

func newActivator(t *testing.T, k *db.Key) (*Activator, *memory.MemoryRepository) {
	t.Helper()
	repo := memory.New()
	if k != nil {
		repo.PutKey(k)
	}
	return NewActivator(repo, WithClock(clock)), repo
}

func TestDecide(t *testing.T) {
	past := db.At(now.Add(-time.Hour))
	future := db.At(now.Add(time.Hour))

	tests := []struct {
		name   string
		key    db.Key
		device string
		want   Outcome
	}{
		{"fresh key", db.Key{Length: 5}, "D1", OutcomeFirstLogin},
		{"wrong device wins over expiry", db.Key{IDDevice: dev("D1"), TimeStart: past, TimeEnd: past}, "D2", OutcomeWrongDevice},
		{"expired same device", db.Key{IDDevice: dev("D1"), TimeStart: past, TimeEnd: past}, "D1", OutcomeExpired},
		{"expired unbound", db.Key{TimeStart: past, TimeEnd: past}, "D9", OutcomeExpired},
		{"rebind", db.Key{TimeStart: past, TimeEnd: future}, "D2", OutcomeResetDevice},
		{"welcome back", db.Key{IDDevice: dev("D1"), TimeStart: past, TimeEnd: future}, "D1", OutcomeWelcomeBack},
		{"end exactly now is valid", db.Key{IDDevice: dev("D1"), TimeStart: past, TimeEnd: db.At(now)}, "D1", OutcomeWelcomeBack},
		{"empty device string is unbound", db.Key{IDDevice: dev(""), TimeStart: past, TimeEnd: future}, "D3", OutcomeResetDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := tt.key
			assert.Equal(t, tt.want, Decide(&k, tt.device, now).Outcome)
		})
	}
}

func TestDecide_FirstLoginWindow(t *testing.T) {
	d := Decide(&db.Key{Length: 7}, "D1", now.Add(300*time.Millisecond))
	assert.Equal(t, now, d.Start)
	assert.Equal(t, now.AddDate(0, 0, 7), d.End)
}

// Scenario A
func TestActivate_FirstLogin(t *testing.T) {
	a, repo := newActivator(t, &db.Key{Key: "acme_5_x", Length: 5, Prefix: "acme"})

	res, err := a.Activate(context.Background(), "acme_5_x", "D1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFirstLogin, res.Outcome)
	assert.EqualValues(t, 1, res.Updated)

	k, err := repo.GetKey(context.Background(), "acme_5_x")
	require.NoError(t, err)
	assert.Equal(t, "D1", k.Device())
	assert.Equal(t, now, k.TimeStart.Time)
	assert.Equal(t, now.AddDate(0, 0, 5), k.TimeEnd.Time)
}

// Scenarios B and C
func TestActivate_AfterFirstLogin(t *testing.T) {
	a, repo := newActivator(t, &db.Key{Key: "k", Length: 5, Prefix: "acme"})
	ctx := context.Background()

	_, err := a.Activate(ctx, "k", "D1")
	require.NoError(t, err)
	before, _ := repo.GetKey(ctx, "k")

	res, err := a.Activate(ctx, "k", "D1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeWelcomeBack, res.Outcome)
	assert.Zero(t, res.Updated)

	res, err = a.Activate(ctx, "k", "D2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeWrongDevice, res.Outcome)
	assert.Equal(t, "D1", res.CurrentDevice)
	assert.True(t, res.Outcome.Rejected())

	after, _ := repo.GetKey(ctx, "k")
	assert.Equal(t, before, after)
}

// Scenario D
func TestActivate_Expired(t *testing.T) {
	end := db.At(now.AddDate(0, 0, -1))
	for _, device := range []string{"D1", "D2"} {
		a, _ := newActivator(t, &db.Key{Key: "k", Length: 1, IDDevice: dev("D1"), TimeStart: db.At(now.AddDate(0, 0, -2)), TimeEnd: end})
		res, err := a.Activate(context.Background(), "k", device)
		require.NoError(t, err)
		if device == "D1" {
			assert.Equal(t, OutcomeExpired, res.Outcome)
			assert.Equal(t, end, res.ExpiredAt)
		} else {
			assert.Equal(t, OutcomeWrongDevice, res.Outcome)
		}
	}

	a, _ := newActivator(t, &db.Key{Key: "k", Length: 1, TimeStart: db.At(now.AddDate(0, 0, -2)), TimeEnd: end})
	res, err := a.Activate(context.Background(), "k", "D7")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, res.Outcome)
}

func TestActivate_Rebind(t *testing.T) {
	a, repo := newActivator(t, &db.Key{Key: "k", Length: 5, TimeStart: db.At(now.Add(-time.Hour)), TimeEnd: db.At(now.AddDate(0, 0, 4))})

	res, err := a.Activate(context.Background(), "k", "D2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeResetDevice, res.Outcome)
	assert.EqualValues(t, 1, res.Updated)

	k, _ := repo.GetKey(context.Background(), "k")
	assert.Equal(t, "D2", k.Device())
	assert.Equal(t, now.Add(-time.Hour), k.TimeStart.Time)
}

func TestActivate_RebindEmptyDevice(t *testing.T) {
	a, repo := newActivator(t, &db.Key{Key: "k", Length: 5, IDDevice: dev(""), TimeStart: db.At(now.Add(-time.Hour)), TimeEnd: db.At(now.AddDate(0, 0, 4))})

	res, err := a.Activate(context.Background(), "k", "D1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeResetDevice, res.Outcome)
	assert.EqualValues(t, 1, res.Updated)

	k, _ := repo.GetKey(context.Background(), "k")
	assert.Equal(t, "D1", k.Device())
}

func TestActivate_NotFound(t *testing.T) {
	var seen []Outcome
	repo := memory.New()
	a := NewActivator(repo, WithClock(clock), WithObserver(func(o Outcome) { seen = append(seen, o) }))

	_, err := a.Activate(context.Background(), "missing", "D1")
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KeyNotFound, ae.Code)
	assert.Equal(t, []Outcome{OutcomeNotFound}, seen)
}

func TestActivate_ConcurrentFirstLogin(t *testing.T) {
	a, repo := newActivator(t, &db.Key{Key: "k", Length: 3})

	var wg sync.WaitGroup
	results := make([]*Result, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := a.Activate(context.Background(), "k", fmt.Sprintf("D%d", i))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	firsts := 0
	for _, r := range results {
		require.NotNil(t, r)
		if r.Outcome == OutcomeFirstLogin {
			firsts++
		} else {
			assert.Equal(t, OutcomeWrongDevice, r.Outcome)
		}
	}
	assert.Equal(t, 1, firsts)

	k, _ := repo.GetKey(context.Background(), "k")
	assert.NotEmpty(t, k.Device())
}

// racyRepo loses every conditional update, as if another instance always
// got there first.
type racyRepo struct {
	*memory.MemoryRepository
	lost int
}

func (r *racyRepo) Activate(ctx context.Context, key, device string, start, end time.Time) (bool, error) {
	r.lost++
	return false, nil
}

func TestActivate_GivesUpAfterLostRaces(t *testing.T) {
	repo := &racyRepo{MemoryRepository: memory.New()}
	repo.PutKey(&db.Key{Key: "k", Length: 3})

	a := NewActivator(repo, WithClock(clock))
	_, err := a.Activate(context.Background(), "k", "D1")

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.UpdateFailed, ae.Code)
	assert.Equal(t, defaultAttempts, repo.lost)
}

type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, name string) (func(), error) {
	return nil, lock.ErrNotAcquired
}

type brokenLocker struct{}

func (brokenLocker) Acquire(ctx context.Context, name string) (func(), error) {
	return nil, errors.New("redis down")
}

func TestActivate_Locking(t *testing.T) {
	repo := memory.New()
	repo.PutKey(&db.Key{Key: "k", Length: 3})

	_, err := NewActivator(repo, WithClock(clock), WithLocker(busyLocker{})).Activate(context.Background(), "k", "D1")
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.TooManyRequests, ae.Code)

	res, err := NewActivator(repo, WithClock(clock), WithLocker(brokenLocker{})).Activate(context.Background(), "k", "D1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFirstLogin, res.Outcome)
}

type waitingLocker struct{}

func (waitingLocker) Acquire(ctx context.Context, name string) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestActivate_CancelledWhileWaitingForLock(t *testing.T) {
	repo := memory.New()
	repo.PutKey(&db.Key{Key: "k", Length: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewActivator(repo, WithClock(clock), WithLocker(waitingLocker{})).Activate(ctx, "k", "D1")
	assert.ErrorIs(t, err, context.Canceled)

	k, err := repo.GetKey(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, k.TimeStart.Valid)
	assert.Empty(t, k.Device())
}

var _ repository.KeyRepository = (*racyRepo)(nil)
