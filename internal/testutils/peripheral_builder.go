package testutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/srg/h64log/internal/device"
)

// FakePeripheral is the behaviour of one simulated strap.
type FakePeripheral struct {
	address         string
	advertisements  []FakeAdvertisement
	values          map[string][]byte
	readErrs        map[string]error
	subscribeErrs   map[string]error
	unsubscribeErrs map[string]error
	connectErr      error
	connectDelay    time.Duration
	disconnectErr   error
}

// Address returns the peripheral address.
func (p *FakePeripheral) Address() string {
	return p.address
}

// PeripheralBuilder builds FakePeripherals with a fluent API.
//
//	strap := testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:FF").
//	    WithName("H64").
//	    WithHeartRateService().
//	    WithBatteryLevel(85).
//	    Build()
type PeripheralBuilder struct {
	p        *FakePeripheral
	adv      FakeAdvertisement
	hidden   bool
	repeated []FakeAdvertisement
}

// NewPeripheralBuilder starts a connectable, advertising peripheral at address.
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{
		p: &FakePeripheral{
			address:         address,
			values:          make(map[string][]byte),
			readErrs:        make(map[string]error),
			subscribeErrs:   make(map[string]error),
			unsubscribeErrs: make(map[string]error),
		},
		adv: FakeAdvertisement{addr: address, connectable: true},
	}
}

// WithName sets the advertised local name.
func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.adv.name = name
	return b
}

// WithRSSI sets the advertised signal strength.
func (b *PeripheralBuilder) WithRSSI(rssi int) *PeripheralBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds advertised service UUIDs in any notation.
func (b *PeripheralBuilder) WithServices(uuids ...string) *PeripheralBuilder {
	b.adv.services = append(b.adv.services, uuids...)
	return b
}

// WithHeartRateService advertises the Heart Rate service in its short form.
func (b *PeripheralBuilder) WithHeartRateService() *PeripheralBuilder {
	return b.WithServices("180d")
}

// WithoutAdvertising keeps the peripheral out of scan results; it can still be connected to.
func (b *PeripheralBuilder) WithoutAdvertising() *PeripheralBuilder {
	b.hidden = true
	return b
}

// WithAdvertisement queues an extra report for the same address, replayed after the first.
func (b *PeripheralBuilder) WithAdvertisement(name string, rssi int, services ...string) *PeripheralBuilder {
	b.repeated = append(b.repeated, FakeAdvertisement{
		addr:        b.p.address,
		name:        name,
		services:    services,
		rssi:        rssi,
		connectable: true,
	})
	return b
}

// WithValue sets the value returned when uuid is read.
func (b *PeripheralBuilder) WithValue(uuid string, value []byte) *PeripheralBuilder {
	b.p.values[device.NormalizeUUID(uuid)] = value
	return b
}

// WithBatteryLevel makes the Battery Level characteristic readable.
func (b *PeripheralBuilder) WithBatteryLevel(percent uint8) *PeripheralBuilder {
	return b.WithValue(device.BatteryLevelUUID, []byte{percent})
}

// WithReadError makes reads of uuid fail.
func (b *PeripheralBuilder) WithReadError(uuid string, err error) *PeripheralBuilder {
	b.p.readErrs[device.NormalizeUUID(uuid)] = err
	return b
}

// WithSubscribeError makes subscriptions to uuid fail.
func (b *PeripheralBuilder) WithSubscribeError(uuid string, err error) *PeripheralBuilder {
	b.p.subscribeErrs[device.NormalizeUUID(uuid)] = err
	return b
}

// WithUnsubscribeError makes unsubscribing from uuid fail.
func (b *PeripheralBuilder) WithUnsubscribeError(uuid string, err error) *PeripheralBuilder {
	b.p.unsubscribeErrs[device.NormalizeUUID(uuid)] = err
	return b
}

// WithConnectError makes Connect fail.
func (b *PeripheralBuilder) WithConnectError(err error) *PeripheralBuilder {
	b.p.connectErr = err
	return b
}

// WithConnectDelay makes Connect take d, or until its context ends.
func (b *PeripheralBuilder) WithConnectDelay(d time.Duration) *PeripheralBuilder {
	b.p.connectDelay = d
	return b
}

// WithDisconnectError makes Disconnect report err after closing the link.
func (b *PeripheralBuilder) WithDisconnectError(err error) *PeripheralBuilder {
	b.p.disconnectErr = err
	return b
}

// FromJSON configures the builder from a JSON document:
//
//	{"name": "H64", "rssi": -60, "services": ["180d"],
//	 "values": {"2a19": [85]},
//	 "errors": {"read": {"2a19": "busy"}, "subscribe": {"2a37": "denied"}}}
//
// It panics on malformed input as it is meant for test fixtures.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...any) *PeripheralBuilder {
	var data struct {
		Name     *string          `json:"name"`
		RSSI     *int             `json:"rssi"`
		Services []string         `json:"services"`
		Hidden   bool             `json:"hidden"`
		Values   map[string][]int `json:"values"`
		Errors   struct {
			Read        map[string]string `json:"read"`
			Subscribe   map[string]string `json:"subscribe"`
			Unsubscribe map[string]string `json:"unsubscribe"`
			Connect     string            `json:"connect"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &data); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}

	if data.Name != nil {
		b.WithName(*data.Name)
	}
	if data.RSSI != nil {
		b.WithRSSI(*data.RSSI)
	}
	b.WithServices(data.Services...)
	if data.Hidden {
		b.WithoutAdvertising()
	}
	for uuid, ints := range data.Values {
		value := make([]byte, len(ints))
		for i, v := range ints {
			value[i] = byte(v)
		}
		b.WithValue(uuid, value)
	}
	for uuid, msg := range data.Errors.Read {
		b.WithReadError(uuid, errors.New(msg))
	}
	for uuid, msg := range data.Errors.Subscribe {
		b.WithSubscribeError(uuid, errors.New(msg))
	}
	for uuid, msg := range data.Errors.Unsubscribe {
		b.WithUnsubscribeError(uuid, errors.New(msg))
	}
	if data.Errors.Connect != "" {
		b.WithConnectError(errors.New(data.Errors.Connect))
	}
	return b
}

// Build returns the configured peripheral.
func (b *PeripheralBuilder) Build() *FakePeripheral {
	p := *b.p
	p.advertisements = nil
	if !b.hidden {
		p.advertisements = append(p.advertisements, b.adv)
		p.advertisements = append(p.advertisements, b.repeated...)
	}
	return &p
}
