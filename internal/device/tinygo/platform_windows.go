//go:build windows

package tinygo

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// parseAddress accepts a MAC address, e.g. "AA:BB:CC:DD:EE:01", in either case.
func parseAddress(id string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid peripheral address %q: %w", id, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

func writeWithResponse(c *bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := c.Write(data)
	return err
}

// WinRT would register the nil callback, so notifications stay on and the
// router drops them.
func disableNotifications(c *bluetooth.DeviceCharacteristic) (stopped bool, err error) {
	return false, nil
}
