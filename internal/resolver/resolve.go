package resolver

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound means no scanned peripheral satisfied the resolution policy.
	ErrNotFound = errors.New("device not found")

	// ErrNoAddress means neither an address nor a scan selection was provided.
	ErrNoAddress = errors.New("no address (paste it or Scan)")
)

// Resolve picks the target among scan results:
//
//  1. an explicit address must match a scanned record exactly (case-insensitive);
//  2. otherwise the first device advertising the Heart Rate service whose name
//     contains nameHint (case-insensitive), or the first such device if no hint;
//  3. otherwise, with a hint, the first device whose name contains it.
//
// Order of results is discovery order, so "first" is deterministic.
func Resolve(explicitAddress, nameHint string, results []PeripheralRecord) (PeripheralRecord, error) {
	if explicitAddress != "" {
		for _, r := range results {
			if strings.EqualFold(r.Address, explicitAddress) {
				return r, nil
			}
		}
		return PeripheralRecord{}, ErrNotFound
	}

	hint := strings.ToLower(nameHint)
	matchesHint := func(r PeripheralRecord) bool {
		return strings.Contains(strings.ToLower(r.Name), hint)
	}

	for _, r := range results {
		if r.HasHeartRateService() && (hint == "" || matchesHint(r)) {
			return r, nil
		}
	}

	if hint != "" {
		for _, r := range results {
			if matchesHint(r) {
				return r, nil
			}
		}
	}

	return PeripheralRecord{}, ErrNotFound
}

// Rank orders records for display: Heart Rate devices first, then by Label.
// The input is not modified.
func Rank(results []PeripheralRecord) []PeripheralRecord {
	ranked := append([]PeripheralRecord(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		hi, hj := ranked[i].HasHeartRateService(), ranked[j].HasHeartRateService()
		if hi != hj {
			return hi
		}
		return ranked[i].Label() < ranked[j].Label()
	})
	return ranked
}

// SelectPreferred returns the index of lastAddress in ranked, or 0 when it is
// absent or empty. It returns -1 for an empty list.
func SelectPreferred(ranked []PeripheralRecord, lastAddress string) int {
	if len(ranked) == 0 {
		return -1
	}
	if lastAddress != "" {
		for i, r := range ranked {
			if strings.EqualFold(r.Address, lastAddress) {
				return i
			}
		}
	}
	return 0
}
