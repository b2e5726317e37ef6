// Package tinygo implements device.Stack on top of tinygo.org/x/bluetooth.
//
// On macOS peripheral identifiers are CoreBluetooth UUIDs rather than MAC
// addresses; parseAddress takes the form of the platform it is built for.
package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// Stack wraps the default tinygo adapter.
type Stack struct {
	adapter *bluetooth.Adapter
	logger  *logrus.Logger

	mu    sync.Mutex
	links map[string]*link
}

// NewStack enables the default adapter and registers the disconnect handler.
func NewStack(logger *logrus.Logger) (*Stack, error) {
	if logger == nil {
		logger = logrus.New()
	}

	s := &Stack{
		adapter: bluetooth.DefaultAdapter,
		logger:  logger,
		links:   make(map[string]*link),
	}
	if err := s.adapter.Enable(); err != nil {
		logger.WithError(err).Error("Failed to enable Bluetooth adapter")
		return nil, fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	}

	// Fired with connected=false when a peripheral goes away.
	s.adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := d.Address.String()
		s.mu.Lock()
		l, ok := s.links[id]
		delete(s.links, id)
		s.mu.Unlock()
		if ok {
			logger.WithField("peripheral_id", id).Warn("Adapter reported disconnection")
			l.markDisconnected()
		}
	})
	return s, nil
}

// Scan reports advertisements until ctx is done.
func (s *Stack) Scan(ctx context.Context, handler func(device.Peripheral)) error {
	done := make(chan struct{})
	groutine.Go(ctx, "tinygo-scan-stopper", func(ctx context.Context) {
		stopWhenCancelled(ctx, done, s.adapter.StopScan, stopScanRetry, s.logger)
	})

	err := s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		handler(device.Peripheral{
			ID:   result.Address.String(),
			Name: result.LocalName(),
			RSSI: int(result.RSSI),
		})
	})
	close(done)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Connect dials the peripheral. The adapter applies its own timeout and
// cannot be interrupted; when ctx ends first the attempt is abandoned and a
// late connection is closed again.
func (s *Stack) Connect(ctx context.Context, id string) (device.Link, error) {
	addr, err := parseAddress(id)
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithField("peripheral_id", id)

	d, err := awaitConnect(ctx,
		func() (bluetooth.Device, error) {
			return s.adapter.Connect(addr, bluetooth.ConnectionParams{})
		},
		func(late bluetooth.Device) {
			logger.Warn("Connection completed after the attempt was abandoned, disconnecting")
			if err := late.Disconnect(); err != nil {
				logger.WithError(err).Warn("Failed to close abandoned connection")
			}
		})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", id, err)
	}

	l := newLink(id, addr.String(), d, s)
	s.mu.Lock()
	s.links[l.key] = l
	s.mu.Unlock()
	return l, nil
}

func (s *Stack) forget(key string) {
	s.mu.Lock()
	delete(s.links, key)
	s.mu.Unlock()
}
