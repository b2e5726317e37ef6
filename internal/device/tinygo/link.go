package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"tinygo.org/x/bluetooth"
)

type link struct {
	id     string
	key    string // adapter address string, as the connect handler reports it
	dev    bluetooth.Device
	stack  *Stack
	logger *logrus.Logger

	mu     sync.RWMutex
	chars  map[string]*bluetooth.DeviceCharacteristic
	router *notifyRouter

	closeOnce    sync.Once
	disconnected chan struct{}
}

func newLink(id, key string, dev bluetooth.Device, stack *Stack) *link {
	return &link{
		id:           id,
		key:          key,
		dev:          dev,
		stack:        stack,
		logger:       stack.logger,
		chars:        make(map[string]*bluetooth.DeviceCharacteristic),
		router:       newNotifyRouter(),
		disconnected: make(chan struct{}),
	}
}

func (l *link) ID() string { return l.id }

// Discover walks every service and characteristic. The adapter does not
// expose characteristic properties on all platforms, so every characteristic
// is reported as writable and notifiable and the peripheral has the final say.
func (l *link) Discover(ctx context.Context) ([]device.CharacteristicRef, error) {
	services, err := l.dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var refs []device.CharacteristicRef
	for i := range services {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		svcUUID := device.NormalizeUUID(services[i].UUID().String())
		chars, err := services[i].DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics of %s: %w", device.ShortUUID(svcUUID), err)
		}
		for j := range chars {
			// BlueZ keeps notification state on the value, so it has to stay addressable.
			c := &chars[j]
			charUUID := device.NormalizeUUID(c.UUID().String())
			l.chars[svcUUID+"/"+charUUID] = c
			refs = append(refs, device.CharacteristicRef{
				Service:                 svcUUID,
				UUID:                    charUUID,
				Writable:                true,
				WritableWithoutResponse: true,
				Notifiable:              true,
			})
		}
	}

	l.logger.WithFields(logrus.Fields{
		"services":        len(services),
		"characteristics": len(refs),
	}).Debug("Profile discovered successfully")
	return refs, nil
}

func (l *link) lookup(service, characteristic string) (*bluetooth.DeviceCharacteristic, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.chars[service+"/"+characteristic]
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found in service %s",
			device.ShortUUID(characteristic), device.ShortUUID(service))
	}
	return c, nil
}

func (l *link) Write(service, characteristic string, data []byte, withResponse bool) error {
	c, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}
	if withResponse {
		return writeWithResponse(c, data)
	}
	_, err = c.WriteWithoutResponse(data)
	return err
}

func (l *link) Subscribe(service, characteristic string, handler func([]byte)) error {
	c, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}
	key := service + "/" + characteristic
	if !l.router.attach(key, handler) {
		return nil
	}
	if err := c.EnableNotifications(l.router.callback(key)); err != nil {
		l.router.detach(key)
		return err
	}
	l.router.setEnabled(key, true)
	return nil
}

// Unsubscribe stops delivery to the handler and turns platform notifications
// off where the adapter supports it.
func (l *link) Unsubscribe(service, characteristic string) error {
	c, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}
	key := service + "/" + characteristic
	l.router.detach(key)

	stopped, err := disableNotifications(c)
	if err != nil {
		return err
	}
	if stopped {
		l.router.setEnabled(key, false)
	} else {
		l.logger.WithField("char_uuid", characteristic).Debug("Notifications stay enabled on this platform; values are dropped")
	}
	return nil
}

func (l *link) Disconnect() error {
	if err := l.dev.Disconnect(); err != nil {
		return err
	}
	l.stack.forget(l.key)
	l.markDisconnected()
	return nil
}

func (l *link) Disconnected() <-chan struct{} {
	return l.disconnected
}

func (l *link) markDisconnected() {
	l.closeOnce.Do(func() { close(l.disconnected) })
}
