package session

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
)

// ScanOptions configures one discovery window.
type ScanOptions struct {
	Duration  time.Duration // zero takes Options.ScanDuration
	NamedOnly bool          // drop peripherals that advertise no name
}

// Scan clears the previous results and collects peripherals until the window
// closes, ctx ends or StopScan is called. onFound, when set, runs once per new
// identifier. A platform failure is logged and returned as a scan error along
// with whatever was discovered before it.
func (s *Session) Scan(ctx context.Context, opts *ScanOptions, onFound func(device.Peripheral)) ([]device.Peripheral, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	duration := opts.Duration
	if duration <= 0 {
		duration = s.opts.ScanDuration
	}

	s.mu.Lock()
	if s.scanCancel != nil {
		s.mu.Unlock()
		s.logger.Warn("Scan requested while another scan is in progress")
		return nil, device.NewError(device.KindScan, "scan already in progress", nil)
	}
	scanCtx, cancel := context.WithTimeout(ctx, duration)
	s.scanCancel = cancel
	s.discovery.reset()
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.scanCancel = nil
		s.mu.Unlock()
	}()

	s.logger.WithField("duration", duration).Info("Starting BLE scan...")

	err := s.stack.Scan(scanCtx, func(p device.Peripheral) {
		if scanCtx.Err() != nil {
			return
		}
		if opts.NamedOnly && p.Name == "" {
			return
		}
		if !s.discovery.add(p) {
			return
		}
		s.logger.WithFields(logrus.Fields{
			"peripheral_id": p.ID,
			"name":          p.Name,
			"rssi":          p.RSSI,
		}).Info("Discovered new peripheral")
		if onFound != nil {
			onFound(p)
		}
	})

	found := s.discovery.list()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.WithError(err).Error("BLE scan failed")
		return found, device.NewError(device.KindScan, "platform scan failed", err)
	}

	s.logger.WithField("device_count", len(found)).Info("BLE scan completed")
	return found, nil
}

// Peripherals is the lazy form of Scan: each newly seen peripheral is yielded
// as it is discovered. Breaking out of the loop stops the scan.
func (s *Session) Peripherals(ctx context.Context, opts *ScanOptions) iter.Seq[device.Peripheral] {
	return func(yield func(device.Peripheral) bool) {
		iterCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		found := make(chan device.Peripheral)
		done := make(chan struct{})

		groutine.Go(iterCtx, "ble-scan-iterator", func(ctx context.Context) {
			defer close(done)
			_, err := s.Scan(ctx, opts, func(p device.Peripheral) {
				select {
				case found <- p:
				case <-ctx.Done():
				}
			})
			if err != nil {
				s.logger.WithError(err).Warn("Peripheral iterator ended on scan error")
			}
		})

		for {
			select {
			case p := <-found:
				if !yield(p) {
					cancel()
					<-done
					return
				}
			case <-done:
				return
			}
		}
	}
}

// StopScan closes the open discovery window early. It is a no-op when no scan is running.
func (s *Session) StopScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanCancel != nil {
		s.logger.Debug("Stopping BLE scan")
		s.scanCancel()
	}
}

// Discovered returns the peripherals found by the current or most recent scan, in discovery order.
func (s *Session) Discovered() []device.Peripheral {
	return s.discovery.list()
}
