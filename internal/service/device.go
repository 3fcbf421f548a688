package service

import (
	"context"

	"github.com/raakeshmj/keygate/internal/apperr"
	"github.com/raakeshmj/keygate/internal/license"
	"github.com/raakeshmj/keygate/internal/validation"
)

// DeviceLoginInput is the decrypted body of a device login.
type DeviceLoginInput struct {
	Key      string `json:"key" validate:"required"`
	IDDevice string `json:"id_device" validate:"required"`
}

type Activator interface {
	Activate(ctx context.Context, key, device string) (*license.Result, error)
}

type DeviceService struct {
	activator Activator
}

func NewDeviceService(a Activator) *DeviceService {
	return &DeviceService{activator: a}
}

// Login runs the activation state machine for the device. Rejections are
// results, not errors; errors are reserved for unknown keys, contention and
// store failures.
func (s *DeviceService) Login(ctx context.Context, in DeviceLoginInput) (*license.Result, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	res, err := s.activator.Activate(ctx, in.Key, in.IDDevice)
	if err != nil {
		return nil, storeError(err, apperr.UpdateFailed, "Failed to activate key")
	}
	return res, nil
}
