package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/h64log/internal/device"
)

// BLEClient is a live GATT session backed by a go-ble client.
type BLEClient struct {
	address string
	client  ble.Client
	profile *ble.Profile
	logger  *logrus.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(address string, client ble.Client, profile *ble.Profile, logger *logrus.Logger) *BLEClient {
	return &BLEClient{
		address: address,
		client:  client,
		profile: profile,
		logger:  logger,
		closed:  make(chan struct{}),
	}
}

func (c *BLEClient) Address() string {
	return c.address
}

// characteristic finds a discovered characteristic by UUID in any notation.
func (c *BLEClient) characteristic(uuid string) (*ble.Characteristic, error) {
	want := device.NormalizeUUID(uuid)
	for _, svc := range c.profile.Services {
		for _, char := range svc.Characteristics {
			if device.NormalizeUUID(char.UUID.String()) == want {
				return char, nil
			}
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUID: uuid}
}

// await runs a blocking go-ble call and gives up when ctx is done.
// The call itself cannot be interrupted; its result is discarded on cancellation.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *BLEClient) ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error) {
	char, err := c.characteristic(uuid)
	if err != nil {
		return nil, &device.TransportError{Op: "read", UUID: uuid, Err: err}
	}

	data, err := await(ctx, func() ([]byte, error) {
		return c.client.ReadCharacteristic(char)
	})
	if err != nil {
		return nil, &device.TransportError{Op: "read", UUID: uuid, Err: NormalizeError(err)}
	}
	return data, nil
}

func (c *BLEClient) Subscribe(ctx context.Context, uuid string, handler device.NotificationHandler) error {
	char, err := c.characteristic(uuid)
	if err != nil {
		return &device.TransportError{Op: "subscribe", UUID: uuid, Err: err}
	}
	if char.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return &device.TransportError{Op: "subscribe", UUID: uuid, Err: device.ErrUnsupported}
	}

	// Prefer notifications; fall back to indications for peripherals that only indicate.
	indicate := char.Property&ble.CharNotify == 0
	_, err = await(ctx, func() (struct{}, error) {
		return struct{}{}, c.client.Subscribe(char, indicate, func(data []byte) {
			handler(data)
		})
	})
	if err != nil {
		return &device.TransportError{Op: "subscribe", UUID: uuid, Err: NormalizeError(err)}
	}

	c.logger.WithFields(logrus.Fields{
		"address":  c.address,
		"charUUID": device.ShortenUUID(uuid),
		"indicate": indicate,
	}).Info("Subscribed to characteristic notifications")
	return nil
}

func (c *BLEClient) Unsubscribe(ctx context.Context, uuid string) error {
	char, err := c.characteristic(uuid)
	if err != nil {
		return &device.TransportError{Op: "unsubscribe", UUID: uuid, Err: err}
	}

	indicate := char.Property&ble.CharNotify == 0
	_, err = await(ctx, func() (struct{}, error) {
		return struct{}{}, c.client.Unsubscribe(char, indicate)
	})
	if err != nil {
		return &device.TransportError{Op: "unsubscribe", UUID: uuid, Err: NormalizeError(err)}
	}

	c.logger.WithField("charUUID", device.ShortenUUID(uuid)).Debug("Unsubscribed from characteristic notifications")
	return nil
}

func (c *BLEClient) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.client.CancelConnection()
		close(c.closed)
	})
	if err != nil {
		return &device.TransportError{Op: "disconnect", Address: c.address, Err: NormalizeError(err)}
	}
	return nil
}

// Disconnected reports link loss when the platform client exposes it
// (CoreBluetooth does), and otherwise closes after Disconnect.
func (c *BLEClient) Disconnected() <-chan struct{} {
	if dc, ok := c.client.(interface{ Disconnected() <-chan struct{} }); ok {
		return dc.Disconnected()
	}
	return c.closed
}
