package testutils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/h64log/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTransportScanReplaysAdvertisements(t *testing.T) {
	tr := NewFakeTransport(
		NewPeripheralBuilder("AA").WithName("H64").WithHeartRateService().WithRSSI(-50).Build(),
		NewPeripheralBuilder("BB").WithoutAdvertising().Build(),
		NewPeripheralBuilder("CC").WithAdvertisement("Other", -70).Build(),
	)

	var seen []string
	require.NoError(t, tr.Scan(context.Background(), func(adv device.Advertisement) {
		seen = append(seen, adv.Addr()+"/"+adv.LocalName())
	}))

	assert.Equal(t, []string{"AA/H64", "CC/", "CC/Other"}, seen)
	assert.Equal(t, 1, tr.ScanCount())
}

func TestFakeTransportHeldScanEndsWithContext(t *testing.T) {
	tr := NewFakeTransport().WithHeldScan()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, tr.Scan(ctx, func(device.Advertisement) {}))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFakeClientNotifications(t *testing.T) {
	tr := NewFakeTransport(NewPeripheralBuilder("AA").WithBatteryLevel(77).Build())

	c, err := tr.Connect(context.Background(), "aa")
	require.NoError(t, err)

	value, err := c.ReadCharacteristic(context.Background(), "2A19")
	require.NoError(t, err)
	assert.Equal(t, []byte{77}, value)

	var got [][]byte
	require.NoError(t, c.Subscribe(context.Background(), device.HeartRateMeasurementUUID, func(b []byte) {
		got = append(got, b)
	}))

	fc := tr.LastClient()
	require.NoError(t, fc.Notify("2a37", []byte{0x00, 60}))
	assert.Equal(t, [][]byte{{0x00, 60}}, got)
	assert.True(t, fc.IsSubscribed(device.HeartRateMeasurementUUID))

	require.NoError(t, c.Unsubscribe(context.Background(), "2a37"))
	assert.Error(t, fc.Notify("2a37", []byte{0x00, 61}))
	assert.Equal(t, []string{"2a37"}, fc.Unsubscribed())
}

func TestFakeClientDisconnect(t *testing.T) {
	tr := NewFakeTransport(NewPeripheralBuilder("AA").Build())
	c, err := tr.Connect(context.Background(), "AA")
	require.NoError(t, err)

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())

	select {
	case <-c.Disconnected():
	default:
		t.Fatal("link should be closed")
	}
	assert.Equal(t, 2, tr.LastClient().DisconnectCount())
}

func TestPeripheralBuilderFromJSON(t *testing.T) {
	p := NewPeripheralBuilder("AA").FromJSON(`{
		"name": "%s",
		"services": ["180d"],
		"values": {"2a19": [42]},
		"errors": {"subscribe": {"2a19": "denied"}}
	}`, "H64").Build()
	tr := NewFakeTransport(p)

	c, err := tr.Connect(context.Background(), "AA")
	require.NoError(t, err)

	value, err := c.ReadCharacteristic(context.Background(), device.BatteryLevelUUID)
	require.NoError(t, err)
	assert.Equal(t, []byte{42}, value)

	err = c.Subscribe(context.Background(), device.BatteryLevelUUID, func([]byte) {})
	var terr *device.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "subscribe", terr.Op)
}

func TestFakeTransportConnectFailures(t *testing.T) {
	boom := errors.New("boom")
	tr := NewFakeTransport(
		NewPeripheralBuilder("AA").WithConnectError(boom).Build(),
		NewPeripheralBuilder("BB").WithConnectDelay(time.Hour).Build(),
	)

	_, err := tr.Connect(context.Background(), "AA")
	assert.ErrorIs(t, err, boom)

	_, err = tr.Connect(context.Background(), "ZZ")
	assert.ErrorIs(t, err, ErrNoSuchPeripheral)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Connect(ctx, "BB")
	assert.ErrorIs(t, err, context.Canceled)
}
