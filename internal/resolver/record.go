package resolver

import (
	"fmt"

	"github.com/srg/h64log/internal/device"
)

// PeripheralRecord is a device observed during one scan. Records are keyed by address.
type PeripheralRecord struct {
	Address      string   `json:"address" yaml:"address"`
	Name         string   `json:"name" yaml:"name"`
	ServiceUUIDs []string `json:"services" yaml:"services"`
	RSSI         int      `json:"rssi" yaml:"rssi"`
}

// HasHeartRateService reports whether the record advertises the Heart Rate service
// in either short or full notation.
func (r PeripheralRecord) HasHeartRateService() bool {
	return device.ContainsUUID(r.ServiceUUIDs, device.HeartRateServiceUUID)
}

// Label is the display title used in device pickers.
func (r PeripheralRecord) Label() string {
	return fmt.Sprintf("%s (%s)", r.Name, r.Address)
}

// Blind builds a record for a device addressed directly, without scanning.
func Blind(address string) PeripheralRecord {
	return PeripheralRecord{Address: address}
}

func recordFromAdvertisement(adv device.Advertisement) PeripheralRecord {
	return PeripheralRecord{
		Address:      adv.Addr(),
		Name:         adv.LocalName(),
		ServiceUUIDs: lowerAll(adv.Services()),
		RSSI:         adv.RSSI(),
	}
}

// merge folds a newer observation of the same device into r. The newer
// observation wins, except that a name or service list missing from it
// (scan responses and advertisements carry different fields) does not erase
// what was already seen.
func (r PeripheralRecord) merge(newer PeripheralRecord) PeripheralRecord {
	out := newer
	if out.Name == "" {
		out.Name = r.Name
	}
	out.ServiceUUIDs = append([]string(nil), r.ServiceUUIDs...)
	for _, u := range newer.ServiceUUIDs {
		if !device.ContainsUUID(out.ServiceUUIDs, u) {
			out.ServiceUUIDs = append(out.ServiceUUIDs, u)
		}
	}
	return out
}
