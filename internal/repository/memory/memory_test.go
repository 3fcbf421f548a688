package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/keygate/internal/db"
	"github.com/raakeshmj/keygate/internal/repository"
)

func TestUsers(t *testing.T) {
	ctx := context.Background()
	r := New()

	require.NoError(t, r.CreateUser(ctx, &db.User{Username: "alice", Password: "h", Prefix: "acme"}))
	require.NoError(t, r.CreateUser(ctx, &db.User{Username: "bob", Password: "h", Prefix: "acme"}))
	require.NoError(t, r.CreateUser(ctx, &db.User{Username: "eve", Password: "h", Prefix: "other"}))
	assert.ErrorIs(t, r.CreateUser(ctx, &db.User{Username: "alice"}), repository.ErrDuplicate)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.TouchLastLogin(ctx, "alice", now))

	u, err := r.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, now, u.LastLogin.Time)

	list, err := r.ListByPrefix(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Username)
	assert.Empty(t, list[0].Password)

	_, err = r.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestKeys_PaginationAndScope(t *testing.T) {
	ctx := context.Background()
	r := New()

	var keys []*db.Key
	for i := 0; i < 5; i++ {
		keys = append(keys, &db.Key{Key: fmt.Sprintf("acme_1_%d", i), Length: 1, Prefix: "acme"})
	}
	require.NoError(t, r.InsertKeys(ctx, keys))
	require.NoError(t, r.InsertKeys(ctx, []*db.Key{{Key: "other_1_x", Length: 1, Prefix: "other"}}))

	page, err := r.ListKeys(ctx, "acme", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "acme_1_2", page[0].Key)

	page, err = r.ListKeys(ctx, "acme", 50, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	n, err := r.DeleteKey(ctx, "acme", "other_1_x")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = r.ResetDevice(ctx, "acme", "other_1_x")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = r.DeleteKey(ctx, "other", "other_1_x")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestActivate_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	r := New()
	r.PutKey(&db.Key{Key: "k", Length: 3, Prefix: "p"})

	start := time.Now()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := r.Activate(ctx, "k", fmt.Sprintf("D%d", i), start, start.AddDate(0, 0, 3))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestBindDevice(t *testing.T) {
	ctx := context.Background()
	r := New()
	r.PutKey(&db.Key{Key: "k", Length: 3, Prefix: "p"})

	ok, err := r.BindDevice(ctx, "k", "D1")
	require.NoError(t, err)
	assert.False(t, ok, "not activated yet")

	now := time.Now()
	r.PutKey(&db.Key{Key: "k", Length: 3, Prefix: "p", TimeStart: db.At(now), TimeEnd: db.At(now.AddDate(0, 0, 3))})

	ok, err = r.BindDevice(ctx, "k", "D1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.BindDevice(ctx, "k", "D2")
	require.NoError(t, err)
	assert.False(t, ok)

	empty := ""
	r.PutKey(&db.Key{Key: "k", Length: 3, Prefix: "p", IDDevice: &empty, TimeStart: db.At(now), TimeEnd: db.At(now.AddDate(0, 0, 3))})
	ok, err = r.BindDevice(ctx, "k", "D2")
	require.NoError(t, err)
	assert.True(t, ok, "empty device is unbound")
	k, _ := r.GetKey(ctx, "k")
	assert.Equal(t, "D2", k.Device())
}
