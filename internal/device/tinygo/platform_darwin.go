//go:build darwin

package tinygo

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// parseAddress accepts the CoreBluetooth peripheral UUID macOS reports instead of a MAC.
func parseAddress(id string) (bluetooth.Address, error) {
	u, err := bluetooth.ParseUUID(id)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid peripheral identifier %q: %w", id, err)
	}
	return bluetooth.Address{UUID: u}, nil
}

func writeWithResponse(c *bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := c.Write(data)
	return err
}

// CoreBluetooth rejects a nil callback, so notifications stay on and the
// router drops them.
func disableNotifications(c *bluetooth.DeviceCharacteristic) (stopped bool, err error) {
	return false, nil
}
