package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// mockDevice overrides the ble.Device methods the stack calls; the rest panic via the nil embed.
type mockDevice struct {
	ble.Device
	mock.Mock
	adverts []ble.Advertisement
}

func (m *mockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup)
	for _, a := range m.adverts {
		h(a)
	}
	if err := args.Error(0); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(a.String())
	client, _ := args.Get(0).(ble.Client)
	return client, args.Error(1)
}

func (m *mockDevice) Stop() error {
	return m.Called().Error(0)
}

type mockClient struct {
	ble.Client
	mock.Mock
	disconnected chan struct{}
	handlers     map[string]ble.NotificationHandler
}

func newMockClient() *mockClient {
	return &mockClient{
		disconnected: make(chan struct{}),
		handlers:     make(map[string]ble.NotificationHandler),
	}
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c.UUID.String(), value, noRsp).Error(0)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	err := m.Called(c.UUID.String(), ind).Error(0)
	if err == nil {
		m.handlers[c.UUID.String()] = h
	}
	return err
}

func (m *mockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c.UUID.String(), ind).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

type fakeAdvertisement struct {
	ble.Advertisement
	addr string
	name string
	rssi int
}

func (a fakeAdvertisement) Addr() ble.Addr     { return ble.NewAddr(a.addr) }
func (a fakeAdvertisement) LocalName() string { return a.name }
func (a fakeAdvertisement) RSSI() int         { return a.rssi }

// serialProfile is service ffe0 with ffe1 (write-without-response, notify)
// and ffe2 (write, indicate).
func serialProfile() *ble.Profile {
	rx := ble.NewCharacteristic(ble.UUID16(0xffe1))
	rx.Property = ble.CharWriteNR | ble.CharNotify
	tx := ble.NewCharacteristic(ble.UUID16(0xffe2))
	tx.Property = ble.CharWrite | ble.CharIndicate

	svc := ble.NewService(ble.UUID16(0xffe0))
	svc.Characteristics = []*ble.Characteristic{rx, tx}
	return &ble.Profile{Services: []*ble.Service{svc}}
}
