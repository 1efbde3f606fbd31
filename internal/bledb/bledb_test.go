package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit short form", input: "180d", expected: "180d"},
		{name: "16-bit with 0x prefix", input: "0x180d", expected: "180d"},
		{name: "16-bit uppercase 0X prefix", input: "0X2A37", expected: "2a37"},
		{name: "Full Bluetooth SIG UUID with dashes", input: "0000180d-0000-1000-8000-00805f9b34fb", expected: "180d"},
		{name: "Full Bluetooth SIG UUID without dashes", input: "0000180d00001000800000805f9b34fb", expected: "180d"},
		{name: "Full Bluetooth SIG UUID uppercase", input: "00002A19-0000-1000-8000-00805F9B34FB", expected: "2a19"},
		{name: "UUID with braces", input: "{0000180d-0000-1000-8000-00805f9b34fb}", expected: "180d"},
		{name: "Custom 128-bit UUID", input: "6e400001-b5a3-f393-e0a9-e50e24dcca9e", expected: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{name: "Wrong prefix is not shortened", input: "AA00180d-0000-1000-8000-00805f9b34fb", expected: "aa00180d00001000800000805f9b34fb"},
		{name: "Partial UUID", input: "0000180d", expected: "0000180d"},
		{name: "Empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	result := NormalizeUUIDs([]string{"0x180D", "00002a37-0000-1000-8000-00805f9b34fb", "2A19"})
	assert.Equal(t, []string{"180d", "2a37", "2a19"}, result)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("180d", "0000180D-0000-1000-8000-00805F9B34FB"))
	assert.False(t, Equal("180d", "180f"))
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		lookup   func(string) string
		uuid     string
		expected string
	}{
		{name: "Heart Rate - short form", lookup: LookupService, uuid: "180d", expected: "Heart Rate"},
		{name: "Heart Rate - full UUID", lookup: LookupService, uuid: "0000180d-0000-1000-8000-00805f9b34fb", expected: "Heart Rate"},
		{name: "Battery Service - full UUID", lookup: LookupService, uuid: "0000180f-0000-1000-8000-00805f9b34fb", expected: "Battery Service"},
		{name: "Unknown service", lookup: LookupService, uuid: "ffff", expected: ""},
		{name: "Heart Rate Measurement", lookup: LookupCharacteristic, uuid: "00002a37-0000-1000-8000-00805f9b34fb", expected: "Heart Rate Measurement"},
		{name: "Battery Level", lookup: LookupCharacteristic, uuid: "2A19", expected: "Battery Level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.lookup(tt.uuid))
		})
	}
}
