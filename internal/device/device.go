package device

import (
	"context"
)

// Peripheral is a BLE device seen during a scan.
type Peripheral struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	RSSI int    `json:"rssi"`
}

// DisplayName returns the advertised name or a placeholder for unnamed devices.
func (p Peripheral) DisplayName() string {
	if p.Name == "" {
		return "Unnamed Device"
	}
	return p.Name
}

// CharacteristicRef identifies a discovered characteristic and what it supports.
// Service and UUID are canonical (see NormalizeUUID).
type CharacteristicRef struct {
	Service                 string `json:"service"`
	UUID                    string `json:"uuid"`
	Writable                bool   `json:"writable"`
	WritableWithoutResponse bool   `json:"writable_without_response"`
	Notifiable              bool   `json:"notifiable"`
}

// AcceptsWrites reports whether either write mode is supported.
func (c CharacteristicRef) AcceptsWrites() bool {
	return c.Writable || c.WritableWithoutResponse
}

// Matches reports whether the reference points at the given service/characteristic pair.
// Both arguments may be in any form accepted by NormalizeUUID.
func (c CharacteristicRef) Matches(service, uuid string) bool {
	return c.Service == NormalizeUUID(service) && c.UUID == NormalizeUUID(uuid)
}

// Stack is the platform BLE stack a session drives.
type Stack interface {
	// Scan reports advertisements to handler until ctx is done.
	// Returning because ctx ended is not an error.
	Scan(ctx context.Context, handler func(Peripheral)) error

	// Connect dials the peripheral with the given identifier.
	Connect(ctx context.Context, id string) (Link, error)
}

// Link is a live connection to one peripheral.
type Link interface {
	ID() string

	// Discover enumerates services and characteristics.
	Discover(ctx context.Context) ([]CharacteristicRef, error)

	Write(service, characteristic string, data []byte, withResponse bool) error
	Subscribe(service, characteristic string, handler func([]byte)) error
	Unsubscribe(service, characteristic string) error

	Disconnect() error

	// Disconnected is closed when the platform reports the link gone.
	Disconnected() <-chan struct{}
}
