package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
)

// link is a connected go-ble client plus the characteristic handles found by Discover.
type link struct {
	id     string
	client ble.Client
	logger *logrus.Logger

	mu       sync.RWMutex
	chars    map[string]*ble.Characteristic
	indicate map[string]bool

	writeMutex sync.Mutex

	closeOnce    sync.Once
	disconnected chan struct{}
}

func newLink(id string, client ble.Client, logger *logrus.Logger) *link {
	l := &link{
		id:           id,
		client:       client,
		logger:       logger,
		chars:        make(map[string]*ble.Characteristic),
		indicate:     make(map[string]bool),
		disconnected: make(chan struct{}),
	}

	// Darwin clients report link loss; elsewhere only Disconnect closes the channel.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok && dc.Disconnected() != nil {
		groutine.Go(context.Background(), "ble-client-monitor", func(context.Context) {
			select {
			case <-dc.Disconnected():
				logger.WithField("peripheral_id", id).Warn("BLE client reported disconnection")
				l.markDisconnected()
			case <-l.disconnected:
			}
		})
	} else {
		logger.Debug("Client does not support Disconnected() channel")
	}
	return l
}

func charKey(service, characteristic string) string {
	return service + "/" + characteristic
}

func (l *link) ID() string { return l.id }

// Discover runs full profile discovery. go-ble does not take a context here,
// so a cancelled ctx abandons the call rather than interrupting it.
func (l *link) Discover(ctx context.Context) ([]device.CharacteristicRef, error) {
	type result struct {
		profile *ble.Profile
		err     error
	}
	done := make(chan result, 1)
	groutine.Go(ctx, "ble-discover-profile", func(context.Context) {
		p, err := l.client.DiscoverProfile(true)
		done <- result{p, err}
	})

	var res result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(res.err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var refs []device.CharacteristicRef
	for _, svc := range res.profile.Services {
		svcUUID := device.NormalizeUUID(svc.UUID.String())
		if svcUUID == "" {
			continue
		}
		l.logger.WithField("service_uuid", svcUUID).Debug("Found service UUID")

		for _, c := range svc.Characteristics {
			charUUID := device.NormalizeUUID(c.UUID.String())
			if charUUID == "" {
				continue
			}
			l.chars[charKey(svcUUID, charUUID)] = c
			refs = append(refs, device.CharacteristicRef{
				Service:                 svcUUID,
				UUID:                    charUUID,
				Writable:                c.Property&ble.CharWrite != 0,
				WritableWithoutResponse: c.Property&ble.CharWriteNR != 0,
				Notifiable:              c.Property&(ble.CharNotify|ble.CharIndicate) != 0,
			})
		}
	}

	l.logger.WithFields(logrus.Fields{
		"services":        len(res.profile.Services),
		"characteristics": len(refs),
	}).Debug("Profile discovered successfully")
	return refs, nil
}

func (l *link) lookup(service, characteristic string) (*ble.Characteristic, string, error) {
	key := charKey(service, characteristic)
	l.mu.RLock()
	c, ok := l.chars[key]
	l.mu.RUnlock()
	if !ok {
		return nil, key, fmt.Errorf("characteristic %s not found in service %s",
			device.ShortUUID(characteristic), device.ShortUUID(service))
	}
	return c, key, nil
}

func (l *link) Write(service, characteristic string, data []byte, withResponse bool) error {
	c, _, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	return NormalizeError(l.client.WriteCharacteristic(c, data, !withResponse))
}

// Subscribe enables notifications, falling back to indications when the
// characteristic only supports those.
func (l *link) Subscribe(service, characteristic string, handler func([]byte)) error {
	c, key, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}

	ind := c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
	if err := NormalizeError(l.client.Subscribe(c, ind, func(data []byte) {
		// go-ble reuses the buffer after the handler returns
		handler(append([]byte(nil), data...))
	})); err != nil {
		return err
	}

	l.mu.Lock()
	l.indicate[key] = ind
	l.mu.Unlock()
	return nil
}

func (l *link) Unsubscribe(service, characteristic string) error {
	c, key, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}

	l.mu.Lock()
	ind := l.indicate[key]
	delete(l.indicate, key)
	l.mu.Unlock()

	return NormalizeError(l.client.Unsubscribe(c, ind))
}

func (l *link) Disconnect() error {
	if err := NormalizeError(l.client.CancelConnection()); err != nil {
		return err
	}
	l.markDisconnected()
	return nil
}

func (l *link) Disconnected() <-chan struct{} {
	return l.disconnected
}

func (l *link) markDisconnected() {
	l.closeOnce.Do(func() { close(l.disconnected) })
}
