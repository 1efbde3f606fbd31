package device

import (
	"github.com/srg/h64log/internal/bledb"
)

// Well-known Bluetooth SIG identifiers used by heart-rate straps.
const (
	HeartRateServiceUUID     = "0000180d-0000-1000-8000-00805f9b34fb"
	HeartRateMeasurementUUID = "00002a37-0000-1000-8000-00805f9b34fb"
	BatteryServiceUUID       = "0000180f-0000-1000-8000-00805f9b34fb"
	BatteryLevelUUID         = "00002a19-0000-1000-8000-00805f9b34fb"
)

// NormalizeUUID is re-exported from bledb for convenience.
// It converts a UUID string to the internal format (lowercase, no dashes) and
// reduces SIG base UUIDs to their 16-bit short form.
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// NormalizeUUIDs is re-exported from bledb for convenience.
func NormalizeUUIDs(uuids []string) []string {
	return bledb.NormalizeUUIDs(uuids)
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
// SIG UUIDs are shown in their 16-bit form, others by their first eight characters.
func ShortenUUID(uuid string) string {
	n := NormalizeUUID(uuid)
	if len(n) > 8 {
		return n[:8]
	}
	return n
}

// ContainsUUID reports whether uuids contains target in any accepted notation.
func ContainsUUID(uuids []string, target string) bool {
	want := NormalizeUUID(target)
	for _, u := range uuids {
		if NormalizeUUID(u) == want {
			return true
		}
	}
	return false
}

// KnownName returns the SIG name for a service or characteristic UUID.
func KnownName(uuid string) string {
	if name := bledb.LookupCharacteristic(uuid); name != "" {
		return name
	}
	return bledb.LookupService(uuid)
}
