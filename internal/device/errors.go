package device

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionStateError reports a link in the wrong state for the requested call.
type ConnectionStateError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionStateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionStateError values by State
func (e *ConnectionStateError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionStateError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionStateError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionStateError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionStateError{State: BluetoothOff}
)

// ErrUnsupported is returned by backends on platforms they cannot drive.
var ErrUnsupported = errors.New("unsupported")

// ErrorKind names the session operation that failed.
type ErrorKind string

const (
	KindScan          ErrorKind = "scan"
	KindConnection    ErrorKind = "connection"
	KindDisconnection ErrorKind = "disconnection"
	KindNotification  ErrorKind = "notification"
	KindWrite         ErrorKind = "write"
)

// OperationError is returned by every session operation.
// Err, when set, is the underlying cause and stays reachable through errors.Is/As.
type OperationError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another OperationError by Kind
func (e *OperationError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*OperationError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Kind sentinels for errors.Is
var (
	ErrScan          = &OperationError{Kind: KindScan}
	ErrConnection    = &OperationError{Kind: KindConnection}
	ErrDisconnection = &OperationError{Kind: KindDisconnection}
	ErrNotification  = &OperationError{Kind: KindNotification}
	ErrWrite         = &OperationError{Kind: KindWrite}
)

// NewError builds an OperationError of the given kind.
func NewError(kind ErrorKind, msg string, cause error) *OperationError {
	return &OperationError{Kind: kind, Msg: msg, Err: cause}
}

// IsConnectionState reports whether err is a ConnectionStateError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionStateError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ContainsIgnoreCase checks the substring case-insensitively.
// Backends use it to map platform error strings onto the sentinels above.
func ContainsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
