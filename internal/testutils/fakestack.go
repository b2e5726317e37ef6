package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/blelink/internal/device"
)

// FakeStack is a scripted device.Stack.
//
// Scan replays Advertisements in order and then blocks until ctx ends, unless
// ScanErr is set, in which case it returns ScanErr right after the replay.
// Connect hands out the FakeLink registered for the identifier.
type FakeStack struct {
	Advertisements []device.Peripheral
	ScanErr        error
	ConnectErr     error

	mu           sync.Mutex
	links        map[string]*FakeLink
	scanCalls    int
	connectCalls []string
}

// NewFakeStack creates a stack that advertises the given peripherals.
func NewFakeStack(adverts ...device.Peripheral) *FakeStack {
	return &FakeStack{
		Advertisements: adverts,
		links:          make(map[string]*FakeLink),
	}
}

// AddLink registers the link that Connect returns for link.ID().
func (s *FakeStack) AddLink(link *FakeLink) *FakeStack {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.ID()] = link
	return s
}

func (s *FakeStack) Scan(ctx context.Context, handler func(device.Peripheral)) error {
	s.mu.Lock()
	s.scanCalls++
	adverts := append([]device.Peripheral(nil), s.Advertisements...)
	s.mu.Unlock()

	for _, p := range adverts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handler(p)
	}
	if s.ScanErr != nil {
		return s.ScanErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *FakeStack) Connect(ctx context.Context, id string) (device.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectCalls = append(s.connectCalls, id)
	if s.ConnectErr != nil {
		return nil, s.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	link, ok := s.links[id]
	if !ok {
		return nil, fmt.Errorf("peripheral %s not found", id)
	}
	return link, nil
}

// ScanCalls reports how many times Scan was invoked.
func (s *FakeStack) ScanCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanCalls
}

// ConnectCalls returns the identifiers passed to Connect, in order.
func (s *FakeStack) ConnectCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.connectCalls...)
}

// FakeWrite is one recorded Link.Write call.
type FakeWrite struct {
	Service        string
	Characteristic string
	Data           []byte
	WithResponse   bool
}

// FakeLink is a scripted device.Link that records every call.
type FakeLink struct {
	Characteristics []device.CharacteristicRef
	DiscoverErr     error
	WriteErr        error
	SubscribeErr    error
	UnsubscribeErr  error
	DisconnectErr   error

	id           string
	mu           sync.Mutex
	writes       []FakeWrite
	handlers     map[string]func([]byte)
	unsubscribed []string
	disconnects  int
	disconnected chan struct{}
	dropOnce     sync.Once
}

// NewFakeLink creates a link for id exposing refs on discovery.
func NewFakeLink(id string, refs ...device.CharacteristicRef) *FakeLink {
	return &FakeLink{
		Characteristics: refs,
		id:              id,
		handlers:        make(map[string]func([]byte)),
		disconnected:    make(chan struct{}),
	}
}

// SerialCharacteristics returns the usual serial-bridge layout: service ffe0
// with one characteristic ffe1 that accepts writes and notifies.
func SerialCharacteristics() []device.CharacteristicRef {
	return []device.CharacteristicRef{{
		Service:                 device.NormalizeUUID("ffe0"),
		UUID:                    device.NormalizeUUID("ffe1"),
		WritableWithoutResponse: true,
		Notifiable:              true,
	}}
}

func fakeKey(service, characteristic string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(characteristic)
}

func (l *FakeLink) ID() string { return l.id }

func (l *FakeLink) Discover(ctx context.Context) ([]device.CharacteristicRef, error) {
	if l.DiscoverErr != nil {
		return nil, l.DiscoverErr
	}
	return l.Characteristics, nil
}

func (l *FakeLink) Write(service, characteristic string, data []byte, withResponse bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.WriteErr != nil {
		return l.WriteErr
	}
	l.writes = append(l.writes, FakeWrite{
		Service:        service,
		Characteristic: characteristic,
		Data:           append([]byte(nil), data...),
		WithResponse:   withResponse,
	})
	return nil
}

func (l *FakeLink) Subscribe(service, characteristic string, handler func([]byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SubscribeErr != nil {
		return l.SubscribeErr
	}
	l.handlers[fakeKey(service, characteristic)] = handler
	return nil
}

func (l *FakeLink) Unsubscribe(service, characteristic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := fakeKey(service, characteristic)
	l.unsubscribed = append(l.unsubscribed, key)
	if l.UnsubscribeErr != nil {
		return l.UnsubscribeErr
	}
	delete(l.handlers, key)
	return nil
}

func (l *FakeLink) Disconnect() error {
	l.mu.Lock()
	l.disconnects++
	err := l.DisconnectErr
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.Drop()
	return nil
}

func (l *FakeLink) Disconnected() <-chan struct{} {
	return l.disconnected
}

// Notify delivers data to the handler registered for the pair, as the
// platform would on a value change. It reports whether a handler was present.
// Handlers stay registered after a failed unsubscribe, like a real stack.
func (l *FakeLink) Notify(service, characteristic string, data []byte) bool {
	l.mu.Lock()
	handler, ok := l.handlers[fakeKey(service, characteristic)]
	l.mu.Unlock()
	if !ok {
		return false
	}
	handler(data)
	return true
}

// Drop simulates the platform reporting the link gone.
func (l *FakeLink) Drop() {
	l.dropOnce.Do(func() { close(l.disconnected) })
}

// Writes returns the recorded writes.
func (l *FakeLink) Writes() []FakeWrite {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FakeWrite(nil), l.writes...)
}

// Unsubscribed returns the canonical pairs passed to Unsubscribe.
func (l *FakeLink) Unsubscribed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.unsubscribed...)
}

// DisconnectCalls reports how many times Disconnect was invoked.
func (l *FakeLink) DisconnectCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disconnects
}
