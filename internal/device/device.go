package device

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError represents an error when a GATT resource is not found on the connected peripheral
type NotFoundError struct {
	Resource string // "service", "characteristic"
	UUID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.UUID)
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff, Msg: "is Bluetooth turned on?"}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// TransportError wraps a failure reported by the BLE stack. Op names the
// transport primitive that failed (scan, connect, read, subscribe, unsubscribe,
// disconnect).
type TransportError struct {
	Op      string
	Address string
	UUID    string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.UUID != "":
		return fmt.Sprintf("%s %s: %v", e.Op, ShortenUUID(e.UUID), e.Err)
	case e.Address != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Advertisement is a single advertising report observed during a scan.
type Advertisement interface {
	Addr() string
	LocalName() string
	Services() []string
	RSSI() int
	Connectable() bool
}

// NotificationHandler receives the raw value of a notified characteristic.
// The transport never invokes a handler concurrently with itself.
type NotificationHandler func(data []byte)

// Transport is the BLE capability the core consumes.
type Transport interface {
	// Scan reports advertisements to handler until ctx is done.
	// Cancellation and deadline expiry are a normal end of the scan and are
	// not returned as errors.
	Scan(ctx context.Context, handler func(Advertisement)) error

	// Connect opens a GATT session to the peripheral with the given address.
	Connect(ctx context.Context, address string) (Client, error)
}

// Client is a live GATT session with one peripheral.
type Client interface {
	Address() string

	ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error)
	Subscribe(ctx context.Context, uuid string, handler NotificationHandler) error
	Unsubscribe(ctx context.Context, uuid string) error

	// Disconnect closes the session. It is safe to call more than once.
	Disconnect() error

	// Disconnected is closed when the peripheral drops the link.
	Disconnected() <-chan struct{}
}
