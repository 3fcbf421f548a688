package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/keygate/internal/apperr"
	"github.com/raakeshmj/keygate/internal/db"
	"github.com/raakeshmj/keygate/internal/license"
	"github.com/raakeshmj/keygate/internal/repository/memory"
	"github.com/raakeshmj/keygate/internal/store"
)

type stubActivator struct {
	res *license.Result
	err error
}

func (s stubActivator) Activate(ctx context.Context, key, device string) (*license.Result, error) {
	return s.res, s.err
}

func TestDeviceService_Login(t *testing.T) {
	repo := memory.New()
	repo.PutKey(&db.Key{Key: "acme_30_abc", Length: 30, Prefix: "acme"})
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := NewDeviceService(license.NewActivator(repo, license.WithClock(func() time.Time { return now })))

	res, err := svc.Login(context.Background(), DeviceLoginInput{Key: "acme_30_abc", IDDevice: "dev-1"})
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeFirstLogin, res.Outcome)
	assert.EqualValues(t, 1, res.Updated)

	res, err = svc.Login(context.Background(), DeviceLoginInput{Key: "acme_30_abc", IDDevice: "dev-2"})
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeWrongDevice, res.Outcome)
	assert.Equal(t, "dev-1", res.CurrentDevice)

	_, err = svc.Login(context.Background(), DeviceLoginInput{Key: "missing", IDDevice: "dev-1"})
	assert.Equal(t, apperr.KeyNotFound, codeOf(t, err))
}

func TestDeviceService_LoginErrors(t *testing.T) {
	_, err := NewDeviceService(stubActivator{}).Login(context.Background(), DeviceLoginInput{Key: "k"})
	assert.Equal(t, apperr.MissingFields, codeOf(t, err))

	_, err = NewDeviceService(stubActivator{err: errors.New("connection reset")}).
		Login(context.Background(), DeviceLoginInput{Key: "k", IDDevice: "d"})
	assert.Equal(t, apperr.UpdateFailed, codeOf(t, err))

	_, err = NewDeviceService(stubActivator{err: &store.Error{Op: "exec", Err: store.ErrUnavailable}}).
		Login(context.Background(), DeviceLoginInput{Key: "k", IDDevice: "d"})
	assert.Equal(t, apperr.DatabaseConnectionFailed, codeOf(t, err))
}
