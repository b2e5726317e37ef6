// Package session owns the single peripheral connection a blelink client talks to.
//
// A Session sequences scan, connect, discover, write, subscribe and disconnect
// calls against a device.Stack and keeps the received-message buffer. At most
// one connection is held at a time; a second Connect is rejected until the
// first is torn down.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
)

// State is the lifecycle state reported by Session.State.
type State int

const (
	Idle State = iota
	Scanning
	Connected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tunes a Session. Zero fields take the tagged defaults.
type Options struct {
	ScanDuration   time.Duration `default:"5s"`
	ConnectTimeout time.Duration `default:"30s"`
	InboxCapacity  int           `default:"4096"`
}

// DefaultOptions returns the default session options.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// Connection is the live peripheral binding created by Connect.
type Connection struct {
	ID              string
	Name            string
	Characteristics []device.CharacteristicRef
	ConnectedAt     time.Time

	done      chan struct{}
	closeOnce sync.Once
	lost      bool
}

func (c *Connection) close(lost bool) {
	c.closeOnce.Do(func() {
		c.lost = lost
		close(c.done)
	})
}

// Done is closed when the connection ends, whether by Disconnect or link loss.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Lost reports whether the connection ended because the platform dropped the link.
// Only meaningful after Done is closed.
func (c *Connection) Lost() bool {
	select {
	case <-c.done:
		return c.lost
	default:
		return false
	}
}

// Characteristic looks up a cached characteristic by service and UUID.
func (c *Connection) Characteristic(service, uuid string) (device.CharacteristicRef, bool) {
	for _, ref := range c.Characteristics {
		if ref.Matches(service, uuid) {
			return ref, true
		}
	}
	return device.CharacteristicRef{}, false
}

// Services returns the distinct discovered service UUIDs, sorted.
func (c *Connection) Services() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ref := range c.Characteristics {
		if _, ok := seen[ref.Service]; ok {
			continue
		}
		seen[ref.Service] = struct{}{}
		out = append(out, ref.Service)
	}
	sort.Strings(out)
	return out
}

// Writable returns the characteristics of service that accept writes.
func (c *Connection) Writable(service string) []device.CharacteristicRef {
	svc := device.NormalizeUUID(service)
	var out []device.CharacteristicRef
	for _, ref := range c.Characteristics {
		if ref.Service == svc && ref.AcceptsWrites() {
			out = append(out, ref)
		}
	}
	return out
}

// Session mediates every call between the UI and the platform BLE stack.
type Session struct {
	stack  device.Stack
	logger *logrus.Logger
	opts   Options

	mu         sync.Mutex
	conn       *Connection
	link       device.Link
	connecting bool
	scanCancel context.CancelFunc

	discovery *discovery
	subs      *hashmap.Map[string, *Subscription]
	inbox     *Inbox
}

// New creates an idle session over stack.
func New(stack device.Stack, logger *logrus.Logger, opts *Options) *Session {
	if logger == nil {
		logger = logrus.New()
	}

	o := DefaultOptions()
	if opts != nil {
		if opts.ScanDuration > 0 {
			o.ScanDuration = opts.ScanDuration
		}
		if opts.ConnectTimeout > 0 {
			o.ConnectTimeout = opts.ConnectTimeout
		}
		if opts.InboxCapacity > 0 {
			o.InboxCapacity = opts.InboxCapacity
		}
	}

	return &Session{
		stack:     stack,
		logger:    logger,
		opts:      *o,
		discovery: newDiscovery(),
		subs:      hashmap.New[string, *Subscription](),
		inbox:     newInbox(o.InboxCapacity, logger),
	}
}

// State reports Connected while a connection is held, else Scanning while a
// discovery window is open, else Idle.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.conn != nil:
		return Connected
	case s.scanCancel != nil:
		return Scanning
	default:
		return Idle
	}
}

// Connection returns the current connection or nil.
func (s *Session) Connection() *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Received returns the text accumulated from notifications.
func (s *Session) Received() string {
	return s.inbox.Text()
}

// ClearReceived empties the received buffer.
func (s *Session) ClearReceived() {
	s.inbox.Reset()
}

// Inbox exposes the received stream for consumers that forward data as it arrives.
func (s *Session) Inbox() *Inbox {
	return s.inbox
}

// Connect dials the peripheral and discovers its characteristics.
// Both steps must succeed; on any failure nothing is retained.
func (s *Session) Connect(ctx context.Context, id string) (*Connection, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, device.NewError(device.KindConnection, "peripheral id is empty", nil)
	}

	logger := s.logger.WithField("peripheral_id", id)

	s.mu.Lock()
	if s.conn != nil || s.connecting {
		s.mu.Unlock()
		logger.Warn("Connection attempt while already connected")
		return nil, device.NewError(device.KindConnection, fmt.Sprintf("cannot connect to %s", id), device.ErrAlreadyConnected)
	}
	s.connecting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	connCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	logger.WithField("timeout", s.opts.ConnectTimeout).Info("Connecting to BLE peripheral...")
	link, err := s.stack.Connect(connCtx, id)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to BLE peripheral")
		return nil, device.NewError(device.KindConnection, fmt.Sprintf("failed to connect to %s", id), err)
	}

	logger.Debug("Discovering services and characteristics...")
	refs, err := link.Discover(connCtx)
	if err != nil {
		logger.WithError(err).Error("Failed to discover services")
		if derr := link.Disconnect(); derr != nil {
			logger.WithField("cancel_error", derr).Warn("Failed to cancel connection after discovery failure")
		}
		return nil, device.NewError(device.KindConnection, "service discovery failed", err)
	}

	conn := &Connection{
		ID:              id,
		Characteristics: refs,
		ConnectedAt:     time.Now(),
		done:            make(chan struct{}),
	}
	if p, ok := s.discovery.lookup(id); ok {
		conn.Name = p.Name
	}

	s.mu.Lock()
	s.conn = conn
	s.link = link
	s.mu.Unlock()

	groutine.Go(context.Background(), "ble-link-monitor", func(context.Context) {
		select {
		case <-link.Disconnected():
			s.dropConnection(conn, true)
		case <-conn.done:
		}
	})

	logger.WithFields(logrus.Fields{
		"services":        len(conn.Services()),
		"characteristics": len(refs),
	}).Info("BLE peripheral connected")
	return conn, nil
}

// Disconnect tears down the connection. On failure the connection is kept as it was.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return device.NewError(device.KindDisconnection, "no active connection", device.ErrNotConnected)
	}

	logger := s.logger.WithField("peripheral_id", s.conn.ID)
	logger.Info("Disconnecting BLE peripheral...")

	if err := s.link.Disconnect(); err != nil {
		logger.WithError(err).Error("Failed to disconnect BLE peripheral")
		return device.NewError(device.KindDisconnection, fmt.Sprintf("failed to disconnect from %s", s.conn.ID), err)
	}

	s.teardownLocked(false)
	logger.Info("BLE peripheral disconnected")
	return nil
}

// Close stops any scan and disconnects if connected.
func (s *Session) Close() error {
	s.StopScan()
	if err := s.Disconnect(); err != nil && !errors.Is(err, device.ErrNotConnected) {
		return err
	}
	return nil
}

// Subscribe registers for value-change notifications on the characteristic.
func (s *Session) Subscribe(service, characteristic string) (*Subscription, error) {
	s.mu.Lock()
	conn, link := s.conn, s.link
	if conn == nil {
		s.mu.Unlock()
		return nil, device.NewError(device.KindNotification, "no active connection", device.ErrNotConnected)
	}
	svc, chr, err := canonicalPair(service, characteristic)
	if err != nil {
		s.mu.Unlock()
		return nil, device.NewError(device.KindNotification, "invalid characteristic", err)
	}
	sub := newSubscription(s, conn, link, svc, chr)
	// Insert, not GetOrInsert: hashmap v1.0.8 spins on GetOrInsert for a key removed with Del.
	if !s.subs.Insert(sub.key, sub) {
		s.mu.Unlock()
		return nil, device.NewError(device.KindNotification,
			fmt.Sprintf("%s/%s", device.ShortUUID(svc), device.ShortUUID(chr)), ErrAlreadySubscribed)
	}
	s.mu.Unlock()

	logger := s.logger.WithFields(logrus.Fields{
		"service_uuid": svc,
		"char_uuid":    chr,
	})

	if err := link.Subscribe(svc, chr, sub.deliver); err != nil {
		sub.detach()
		logger.WithError(err).Error("Failed to subscribe to characteristic notifications")
		s.dropIfLinkLost(conn, err)
		return nil, device.NewError(device.KindNotification,
			fmt.Sprintf("failed to subscribe to %s/%s", device.ShortUUID(svc), device.ShortUUID(chr)), err)
	}

	logger.Info("Subscribed to characteristic notifications")
	return sub, nil
}

// Write encodes message one byte per character and writes it without response.
func (s *Session) Write(service, characteristic, message string) error {
	return s.WriteBytes(service, characteristic, device.EncodeMessage(message))
}

// WriteBytes writes raw data without response.
func (s *Session) WriteBytes(service, characteristic string, data []byte) error {
	s.mu.Lock()
	conn, link := s.conn, s.link
	s.mu.Unlock()

	if conn == nil || len(conn.Characteristics) == 0 {
		return device.NewError(device.KindWrite, "no device connected or characteristics not retrieved", device.ErrNotConnected)
	}

	svc, chr, err := canonicalPair(service, characteristic)
	if err != nil {
		return device.NewError(device.KindWrite, "invalid characteristic", err)
	}

	if err := link.Write(svc, chr, data, false); err != nil {
		s.logger.WithFields(logrus.Fields{
			"service_uuid": svc,
			"char_uuid":    chr,
			"bytes":        len(data),
		}).WithError(err).Error("Failed to write characteristic")
		s.dropIfLinkLost(conn, err)
		return device.NewError(device.KindWrite,
			fmt.Sprintf("failed to write %d bytes to %s", len(data), device.ShortUUID(chr)), err)
	}

	s.logger.WithFields(logrus.Fields{
		"char_uuid": chr,
		"bytes":     len(data),
	}).Debug("Wrote characteristic")
	return nil
}

func (s *Session) deliver(sub *Subscription, data []byte) {
	s.logger.WithFields(logrus.Fields{
		"char_uuid": sub.characteristic,
		"bytes":     len(data),
	}).Debug("Received notification")
	s.inbox.append(data)
}

// dropIfLinkLost ends conn when err says the platform no longer has the link.
func (s *Session) dropIfLinkLost(conn *Connection, err error) {
	if errors.Is(err, device.ErrNotConnected) {
		s.dropConnection(conn, true)
	}
}

func (s *Session) dropConnection(conn *Connection, lost bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return
	}
	s.logger.WithField("peripheral_id", conn.ID).Warn("BLE link lost, dropping connection")
	s.teardownLocked(lost)
}

// teardownLocked clears connection state. Caller holds s.mu.
func (s *Session) teardownLocked(lost bool) {
	var subs []*Subscription
	s.subs.Range(func(_ string, sub *Subscription) bool {
		subs = append(subs, sub)
		return true
	})
	for _, sub := range subs {
		sub.detach()
	}
	s.conn.Characteristics = nil
	s.conn.close(lost)
	s.conn = nil
	s.link = nil
}

func canonicalPair(service, characteristic string) (string, string, error) {
	uuids, err := device.ValidateUUID(service, characteristic)
	if err != nil {
		return "", "", err
	}
	return uuids[0], uuids[1], nil
}
