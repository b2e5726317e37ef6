// Package devicefactory selects the platform BLE stack a session runs on.
package devicefactory

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	goble "github.com/srg/blelink/internal/device/go-ble"
	"github.com/srg/blelink/internal/device/tinygo"
	"github.com/srg/blelink/pkg/config"
)

// StackFactory creates the device.Stack named by cfg.Backend.
// This is a variable so that it can be overridden in tests.
var StackFactory = func(cfg *config.Config, logger *logrus.Logger) (device.Stack, error) {
	backend := config.BackendGoBLE
	if cfg != nil && cfg.Backend != "" {
		backend = cfg.Backend
	}

	logger.WithField("backend", backend).Debug("Opening BLE stack...")
	var (
		stack device.Stack
		err   error
	)
	switch backend {
	case config.BackendGoBLE:
		stack, err = goble.NewStack(logger)
	case config.BackendTinyGo:
		stack, err = tinygo.NewStack(logger)
	default:
		return nil, fmt.Errorf("backend %q: %w", backend, device.ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}
	return stack, nil
}
