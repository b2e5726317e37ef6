package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/session"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE link dropped while a command was using it.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a peripheral that was never connected or was already disconnected.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns an error chain into a one-line message for the terminal.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, ErrConnectionLost):
		return fmt.Sprintf("the peripheral went away: %v", err)
	case errors.Is(err, device.ErrAlreadyConnected):
		return "a peripheral is already connected"
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("not supported on this platform: %v", err)
	case errors.Is(err, session.ErrAlreadySubscribed):
		return "already subscribed to that characteristic"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out: %v", err)
	case errors.Is(err, device.ErrWrite) && errors.Is(err, device.ErrNotConnected):
		return "no device connected or characteristics not retrieved"
	default:
		return err.Error()
	}
}
