//go:build linux

package tinygo

import (
	"fmt"
	"strings"

	"github.com/srg/blelink/internal/device"
	"tinygo.org/x/bluetooth"
)

// parseAddress accepts the MAC address BlueZ reports, e.g. "AA:BB:CC:DD:EE:01", in either case.
func parseAddress(id string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid peripheral address %q: %w", id, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

// BlueZ characteristics only offer write without response.
func writeWithResponse(c *bluetooth.DeviceCharacteristic, data []byte) error {
	return fmt.Errorf("write with response: %w", device.ErrUnsupported)
}

// disableNotifications sends StopNotify; a nil callback is how BlueZ turns them off.
func disableNotifications(c *bluetooth.DeviceCharacteristic) (stopped bool, err error) {
	if err := c.EnableNotifications(nil); err != nil {
		return false, err
	}
	return true, nil
}
