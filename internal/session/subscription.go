package session

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
)

// ErrAlreadySubscribed is wrapped by Subscribe when the pair already has a live handle.
var ErrAlreadySubscribed = errors.New("already subscribed")

// Subscription is the handle returned by Session.Subscribe.
// Release detaches the listener; the session also detaches every handle when
// the connection ends.
type Subscription struct {
	session        *Session
	conn           *Connection
	link           device.Link
	key            string
	service        string
	characteristic string
	active         atomic.Bool
}

func newSubscription(s *Session, conn *Connection, link device.Link, service, characteristic string) *Subscription {
	sub := &Subscription{
		session:        s,
		conn:           conn,
		link:           link,
		key:            subscriptionKey(service, characteristic),
		service:        service,
		characteristic: characteristic,
	}
	sub.active.Store(true)
	return sub
}

func subscriptionKey(service, characteristic string) string {
	return service + "/" + characteristic
}

// Service returns the canonical service UUID.
func (sub *Subscription) Service() string { return sub.service }

// Characteristic returns the canonical characteristic UUID.
func (sub *Subscription) Characteristic() string { return sub.characteristic }

// Active reports whether notifications are still delivered through this handle.
func (sub *Subscription) Active() bool { return sub.active.Load() }

func (sub *Subscription) deliver(data []byte) {
	if !sub.active.Load() {
		return
	}
	sub.session.deliver(sub, data)
}

// detach stops delivery without touching the link.
func (sub *Subscription) detach() bool {
	if !sub.active.CompareAndSwap(true, false) {
		return false
	}
	sub.session.subs.Del(sub.key)
	return true
}

// Release unsubscribes on the link and detaches the listener. Calling it again is a no-op.
// The listener is detached even when the unsubscribe call fails.
func (sub *Subscription) Release() error {
	if !sub.detach() {
		return nil
	}

	logger := sub.session.logger.WithFields(logrus.Fields{
		"service_uuid": sub.service,
		"char_uuid":    sub.characteristic,
	})

	if err := sub.link.Unsubscribe(sub.service, sub.characteristic); err != nil {
		logger.WithError(err).Warn("Failed to unsubscribe from characteristic notifications")
		sub.session.dropIfLinkLost(sub.conn, err)
		return device.NewError(device.KindNotification,
			fmt.Sprintf("failed to unsubscribe from %s/%s", device.ShortUUID(sub.service), device.ShortUUID(sub.characteristic)), err)
	}

	logger.Debug("Unsubscribed from characteristic notifications")
	return nil
}
