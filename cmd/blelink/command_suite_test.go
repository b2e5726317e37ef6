package main

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/devicefactory"
	"github.com/srg/blelink/internal/testutils"
	"github.com/srg/blelink/pkg/config"
	"github.com/stretchr/testify/suite"
)

// Test peripheral identifiers for consistent fake stack setup
const (
	TestPeripheralID1 = "00:00:00:00:00:01"
	TestPeripheralID2 = "00:00:00:00:00:02"
)

// CommandTestSuite runs commands against a FakeStack installed through devicefactory.StackFactory.
// All cmd/blelink test suites should embed this.
type CommandTestSuite struct {
	suite.Suite
	Stack *testutils.FakeStack
	Link  *testutils.FakeLink

	originalFactory func(*config.Config, *logrus.Logger) (device.Stack, error)
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalFactory = devicefactory.StackFactory
}

func (s *CommandTestSuite) TearDownSuite() {
	devicefactory.StackFactory = s.originalFactory
}

// SetupTest installs a fresh fake stack and resets global flag state.
func (s *CommandTestSuite) SetupTest() {
	s.T().Setenv("HOME", s.T().TempDir()) // keep a real ~/.config/blelink out of the test

	s.Stack = testutils.NewFakeStack(
		device.Peripheral{ID: TestPeripheralID1, Name: "HC-08", RSSI: -41},
		device.Peripheral{ID: TestPeripheralID2, RSSI: -77},
		device.Peripheral{ID: TestPeripheralID1, Name: "HC-08", RSSI: -44},
	)
	s.Link = testutils.NewFakeLink(TestPeripheralID1, testutils.SerialCharacteristics()...)
	s.Stack.AddLink(s.Link)
	devicefactory.StackFactory = func(*config.Config, *logrus.Logger) (device.Stack, error) {
		return s.Stack, nil
	}

	resetFlags()
}

// ExecuteCommand runs the root command with args and empty stdin, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	return s.ExecuteCommandWithInput(strings.NewReader(""), args...)
}

// ExecuteCommandWithInput runs the root command reading stdin from in.
func (s *CommandTestSuite) ExecuteCommandWithInput(in io.Reader, args ...string) (string, error) {
	buf := new(syncBuffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(in)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// syncBuffer is a bytes.Buffer safe for the concurrent writers chat and bridge start.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func resetFlags() {
	logLevelFlag, verboseFlag, configPath = "", false, ""
	scanDuration, scanFormat, scanNamedOnly = 0, "", false
	inspectServiceUUID, inspectFormat = "", ""
	sendServiceUUID, sendCharUUID = "", ""
	chatServiceUUID, chatCharUUID, chatEOL = "", "", ""
	bridgeServiceUUID, bridgeCharUUID, bridgeSymlink = "", "", ""
}
