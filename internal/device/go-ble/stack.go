// Package goble implements device.Stack on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Stack drives one go-ble host device.
type Stack struct {
	dev    ble.Device
	logger *logrus.Logger
}

// NewStack opens the platform BLE device through DeviceFactory.
func NewStack(logger *logrus.Logger) (*Stack, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	return &Stack{dev: dev, logger: logger}, nil
}

// Scan reports every advertisement until ctx is done.
// Duplicate suppression is left to the caller.
func (s *Stack) Scan(ctx context.Context, handler func(device.Peripheral)) error {
	err := s.dev.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(device.Peripheral{
			ID:   adv.Addr().String(),
			Name: adv.LocalName(),
			RSSI: adv.RSSI(),
		})
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return NormalizeError(err)
}

// Connect dials the peripheral addressed by id.
func (s *Stack) Connect(ctx context.Context, id string) (device.Link, error) {
	s.logger.WithField("peripheral_id", id).Debug("Dialing BLE peripheral...")
	client, err := s.dev.Dial(ctx, ble.NewAddr(id))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %q: %w", id, NormalizeError(err))
	}
	return newLink(id, client, s.logger), nil
}

// Stop releases the host device.
func (s *Stack) Stop() error {
	return NormalizeError(s.dev.Stop())
}
