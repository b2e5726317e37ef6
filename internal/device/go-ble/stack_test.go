package goble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type StackTestSuite struct {
	suite.Suite
	helper  *testutils.TestHelper
	dev     *mockDevice
	client  *mockClient
	stack   *Stack
	factory func() (ble.Device, error)
}

func (suite *StackTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.dev = &mockDevice{}
	suite.client = newMockClient()

	suite.factory = DeviceFactory
	DeviceFactory = func() (ble.Device, error) { return suite.dev, nil }

	var err error
	suite.stack, err = NewStack(suite.helper.Logger)
	suite.Require().NoError(err)
}

func (suite *StackTestSuite) TearDownTest() {
	DeviceFactory = suite.factory
}

func (suite *StackTestSuite) connect() device.Link {
	suite.dev.On("Dial", "aa:bb:cc:dd:ee:01").Return(suite.client, nil)
	suite.client.On("DiscoverProfile", true).Return(serialProfile(), nil)

	link, err := suite.stack.Connect(context.Background(), "aa:bb:cc:dd:ee:01")
	suite.Require().NoError(err)
	_, err = link.Discover(context.Background())
	suite.Require().NoError(err)
	return link
}

func (suite *StackTestSuite) TestNewStackFactoryFailure() {
	// GOAL: Verify a platform failure opening the host device is normalized
	//
	// TEST SCENARIO: Factory reports Bluetooth off → NewStack fails with ErrBluetoothOff

	DeviceFactory = func() (ble.Device, error) {
		return nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	}

	_, err := NewStack(suite.helper.Logger)

	suite.Assert().ErrorIs(err, device.ErrBluetoothOff)
}

func (suite *StackTestSuite) TestScan() {
	// GOAL: Verify advertisements are converted to peripherals and cancellation is not an error
	//
	// TEST SCENARIO: Device replays two advertisements → handler sees both → ctx timeout ends scan cleanly

	suite.dev.adverts = []ble.Advertisement{
		fakeAdvertisement{addr: "aa:bb:cc:dd:ee:01", name: "HC-08", rssi: -45},
		fakeAdvertisement{addr: "aa:bb:cc:dd:ee:02", rssi: -80},
	}
	suite.dev.On("Scan", mock.Anything, true).Return(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var seen []device.Peripheral
	err := suite.stack.Scan(ctx, func(p device.Peripheral) { seen = append(seen, p) })

	suite.Assert().ErrorIs(err, context.DeadlineExceeded)
	suite.Assert().Equal([]device.Peripheral{
		{ID: "aa:bb:cc:dd:ee:01", Name: "HC-08", RSSI: -45},
		{ID: "aa:bb:cc:dd:ee:02", RSSI: -80},
	}, seen)
	suite.dev.AssertExpectations(suite.T())
}

func (suite *StackTestSuite) TestScanFailure() {
	// GOAL: Verify platform scan errors are normalized
	//
	// TEST SCENARIO: Device scan fails with "bluetooth is turned off" → ErrBluetoothOff returned

	suite.dev.On("Scan", mock.Anything, true).Return(errors.New("Bluetooth is turned off"))

	err := suite.stack.Scan(context.Background(), func(device.Peripheral) {})

	suite.Assert().ErrorIs(err, device.ErrBluetoothOff)
}

func (suite *StackTestSuite) TestConnectFailure() {
	// GOAL: Verify dial errors are reported with the peripheral id
	//
	// TEST SCENARIO: Dial fails → Connect returns wrapped error

	suite.dev.On("Dial", "aa:bb:cc:dd:ee:09").Return(nil, errors.New("connection timed out"))

	_, err := suite.stack.Connect(context.Background(), "aa:bb:cc:dd:ee:09")

	suite.Assert().ErrorContains(err, "aa:bb:cc:dd:ee:09")
	suite.Assert().ErrorContains(err, "connection timed out")
}

func (suite *StackTestSuite) TestDiscover() {
	// GOAL: Verify discovery reports canonical UUIDs and capability flags
	//
	// TEST SCENARIO: Profile with ffe1 (NR write, notify) and ffe2 (write, indicate) → two refs

	suite.dev.On("Dial", "aa:bb:cc:dd:ee:01").Return(suite.client, nil)
	suite.client.On("DiscoverProfile", true).Return(serialProfile(), nil)

	link, err := suite.stack.Connect(context.Background(), "aa:bb:cc:dd:ee:01")
	suite.Require().NoError(err)
	suite.Assert().Equal("aa:bb:cc:dd:ee:01", link.ID())

	refs, err := link.Discover(context.Background())
	suite.Require().NoError(err)

	svc := device.NormalizeUUID("ffe0")
	suite.Assert().Equal([]device.CharacteristicRef{
		{Service: svc, UUID: device.NormalizeUUID("ffe1"), WritableWithoutResponse: true, Notifiable: true},
		{Service: svc, UUID: device.NormalizeUUID("ffe2"), Writable: true, Notifiable: true},
	}, refs)
}

func (suite *StackTestSuite) TestDiscoverFailure() {
	// GOAL: Verify a profile discovery error is normalized
	//
	// TEST SCENARIO: DiscoverProfile reports disconnection → ErrNotConnected

	suite.dev.On("Dial", "aa:bb:cc:dd:ee:01").Return(suite.client, nil)
	suite.client.On("DiscoverProfile", true).Return(nil, errors.New("peripheral disconnected"))

	link, err := suite.stack.Connect(context.Background(), "aa:bb:cc:dd:ee:01")
	suite.Require().NoError(err)

	_, err = link.Discover(context.Background())
	suite.Assert().ErrorIs(err, device.ErrNotConnected)
}

func (suite *StackTestSuite) TestWrite() {
	// GOAL: Verify writes reach the right characteristic with the right response mode
	//
	// TEST SCENARIO: Write without response to ffe1 → noRsp=true; unknown characteristic → error, no call

	link := suite.connect()
	svc, chr := device.NormalizeUUID("ffe0"), device.NormalizeUUID("ffe1")
	suite.client.On("WriteCharacteristic", "ffe1", []byte("AT"), true).Return(nil).Once()

	suite.Assert().NoError(link.Write(svc, chr, []byte("AT"), false))

	err := link.Write(svc, device.NormalizeUUID("abcd"), []byte("AT"), false)
	suite.Assert().ErrorContains(err, "not found")
	suite.client.AssertExpectations(suite.T())
}

func (suite *StackTestSuite) TestSubscribe() {
	// GOAL: Verify subscribe picks notify or indicate and unsubscribe mirrors it
	//
	// TEST SCENARIO: ffe1 notifies, ffe2 only indicates → matching ind flag on both calls

	link := suite.connect()
	svc := device.NormalizeUUID("ffe0")
	suite.client.On("Subscribe", "ffe1", false).Return(nil)
	suite.client.On("Subscribe", "ffe2", true).Return(nil)
	suite.client.On("Unsubscribe", "ffe2", true).Return(nil)

	var got []byte
	suite.Require().NoError(link.Subscribe(svc, device.NormalizeUUID("ffe1"), func(b []byte) { got = b }))
	suite.Require().NoError(link.Subscribe(svc, device.NormalizeUUID("ffe2"), func([]byte) {}))

	buf := []byte("Hi")
	suite.client.handlers["ffe1"](buf)
	buf[0] = 'X'
	suite.Assert().Equal([]byte("Hi"), got, "handler MUST receive a copy of the platform buffer")

	suite.Assert().NoError(link.Unsubscribe(svc, device.NormalizeUUID("ffe2")))
	suite.client.AssertExpectations(suite.T())
}

func (suite *StackTestSuite) TestDisconnect() {
	// GOAL: Verify Disconnect cancels the connection and closes Disconnected
	//
	// TEST SCENARIO: CancelConnection fails once → channel open; succeeds → channel closed

	link := suite.connect()
	suite.client.On("CancelConnection").Return(errors.New("hci busy")).Once()
	suite.client.On("CancelConnection").Return(nil).Once()

	suite.Assert().Error(link.Disconnect())
	select {
	case <-link.Disconnected():
		suite.Fail("Disconnected MUST stay open after a failed disconnect")
	default:
	}

	suite.Assert().NoError(link.Disconnect())
	select {
	case <-link.Disconnected():
	default:
		suite.Fail("Disconnected MUST be closed")
	}
}

func (suite *StackTestSuite) TestPlatformDisconnect() {
	// GOAL: Verify a client-reported disconnection is surfaced on the link
	//
	// TEST SCENARIO: Client Disconnected channel closes → link Disconnected closes

	link := suite.connect()
	close(suite.client.disconnected)

	select {
	case <-link.Disconnected():
	case <-time.After(time.Second):
		suite.Fail("link MUST report the platform disconnection")
	}
}

func TestStackTestSuite(t *testing.T) {
	suite.Run(t, new(StackTestSuite))
}
