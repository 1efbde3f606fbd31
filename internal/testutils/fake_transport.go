package testutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/srg/h64log/internal/device"
)

// ErrNoSuchPeripheral is returned by FakeTransport.Connect for unknown addresses.
var ErrNoSuchPeripheral = errors.New("no such peripheral")

// FakeAdvertisement is a canned advertising report.
type FakeAdvertisement struct {
	addr        string
	name        string
	services    []string
	rssi        int
	connectable bool
}

func (a FakeAdvertisement) Addr() string       { return a.addr }
func (a FakeAdvertisement) LocalName() string  { return a.name }
func (a FakeAdvertisement) Services() []string { return a.services }
func (a FakeAdvertisement) RSSI() int          { return a.rssi }
func (a FakeAdvertisement) Connectable() bool  { return a.connectable }

// FakeTransport is an in-memory device.Transport over a set of fake peripherals.
type FakeTransport struct {
	mu          sync.Mutex
	peripherals []*FakePeripheral
	scanErr     error
	holdScan    bool
	scans       int
	clients     []*FakeClient
}

var _ device.Transport = (*FakeTransport)(nil)

// NewFakeTransport creates a transport that knows the given peripherals.
func NewFakeTransport(peripherals ...*FakePeripheral) *FakeTransport {
	return &FakeTransport{peripherals: peripherals}
}

// WithScanError makes every Scan fail with err.
func (t *FakeTransport) WithScanError(err error) *FakeTransport {
	t.scanErr = err
	return t
}

// WithHeldScan keeps Scan running after replaying advertisements until its context ends.
func (t *FakeTransport) WithHeldScan() *FakeTransport {
	t.holdScan = true
	return t
}

// Scan replays every advertisement of every peripheral in order.
func (t *FakeTransport) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	t.mu.Lock()
	t.scans++
	scanErr := t.scanErr
	hold := t.holdScan
	peripherals := append([]*FakePeripheral(nil), t.peripherals...)
	t.mu.Unlock()

	if scanErr != nil {
		return &device.TransportError{Op: "scan", Err: scanErr}
	}

	for _, p := range peripherals {
		for _, adv := range p.advertisements {
			if ctx.Err() != nil {
				return nil
			}
			handler(adv)
		}
	}

	if hold {
		<-ctx.Done()
	}
	return nil
}

// Connect opens a FakeClient to the peripheral at address.
func (t *FakeTransport) Connect(ctx context.Context, address string) (device.Client, error) {
	p := t.find(address)
	if p == nil {
		return nil, &device.TransportError{Op: "connect", Address: address, Err: ErrNoSuchPeripheral}
	}

	if p.connectDelay > 0 {
		select {
		case <-time.After(p.connectDelay):
		case <-ctx.Done():
			return nil, &device.TransportError{Op: "connect", Address: address, Err: ctx.Err()}
		}
	}
	if p.connectErr != nil {
		return nil, &device.TransportError{Op: "connect", Address: address, Err: p.connectErr}
	}

	c := newFakeClient(p)
	t.mu.Lock()
	t.clients = append(t.clients, c)
	t.mu.Unlock()
	return c, nil
}

func (t *FakeTransport) find(address string) *FakePeripheral {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.peripherals {
		if strings.EqualFold(p.address, address) {
			return p
		}
	}
	return nil
}

// ScanCount returns how many scans were started.
func (t *FakeTransport) ScanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scans
}

// Clients returns every client handed out by Connect, oldest first.
func (t *FakeTransport) Clients() []*FakeClient {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*FakeClient(nil), t.clients...)
}

// LastClient returns the most recently connected client, or nil.
func (t *FakeTransport) LastClient() *FakeClient {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.clients) == 0 {
		return nil
	}
	return t.clients[len(t.clients)-1]
}

// FakeClient is a device.Client whose notifications are driven by the test.
type FakeClient struct {
	peripheral *FakePeripheral

	mu           sync.Mutex
	handlers     map[string]device.NotificationHandler
	subscribed   []string
	unsubscribed []string
	disconnects  int

	linkOnce     sync.Once
	disconnected chan struct{}
}

var _ device.Client = (*FakeClient)(nil)

func newFakeClient(p *FakePeripheral) *FakeClient {
	return &FakeClient{
		peripheral:   p,
		handlers:     make(map[string]device.NotificationHandler),
		disconnected: make(chan struct{}),
	}
}

func (c *FakeClient) Address() string {
	return c.peripheral.address
}

func (c *FakeClient) ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := device.NormalizeUUID(uuid)
	if err, ok := c.peripheral.readErrs[key]; ok {
		return nil, &device.TransportError{Op: "read", UUID: uuid, Err: err}
	}
	value, ok := c.peripheral.values[key]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUID: uuid}
	}
	return append([]byte(nil), value...), nil
}

func (c *FakeClient) Subscribe(ctx context.Context, uuid string, handler device.NotificationHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := device.NormalizeUUID(uuid)
	if err, ok := c.peripheral.subscribeErrs[key]; ok {
		return &device.TransportError{Op: "subscribe", UUID: uuid, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[key] = handler
	c.subscribed = append(c.subscribed, key)
	return nil
}

func (c *FakeClient) Unsubscribe(_ context.Context, uuid string) error {
	key := device.NormalizeUUID(uuid)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, key)
	delete(c.handlers, key)

	if err, ok := c.peripheral.unsubscribeErrs[key]; ok {
		return &device.TransportError{Op: "unsubscribe", UUID: uuid, Err: err}
	}
	return nil
}

func (c *FakeClient) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()

	c.closeLink()
	return c.peripheral.disconnectErr
}

func (c *FakeClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Notify delivers data to the handler subscribed to uuid, on the caller's goroutine.
func (c *FakeClient) Notify(uuid string, data []byte) error {
	c.mu.Lock()
	h, ok := c.handlers[device.NormalizeUUID(uuid)]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("not subscribed to %s", uuid)
	}
	h(data)
	return nil
}

// DropLink simulates the peripheral going away.
func (c *FakeClient) DropLink() {
	c.closeLink()
}

func (c *FakeClient) closeLink() {
	c.linkOnce.Do(func() { close(c.disconnected) })
}

// IsSubscribed reports whether a handler is currently installed for uuid.
func (c *FakeClient) IsSubscribed(uuid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[device.NormalizeUUID(uuid)]
	return ok
}

// Subscribed returns the normalized UUIDs subscribed to, in order.
func (c *FakeClient) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

// Unsubscribed returns the normalized UUIDs unsubscribed from, in order.
func (c *FakeClient) Unsubscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribed...)
}

// DisconnectCount returns how many times Disconnect was called.
func (c *FakeClient) DisconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}
