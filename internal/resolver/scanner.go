// Package resolver discovers nearby peripherals and picks the one to connect to.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/h64log/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultScanTimeout is how long a scan runs when no duration is given.
const DefaultScanTimeout = 12 * time.Second

// DiscoveryHandler is notified for every advertisement folded into the scan
// results. isNew is true the first time an address is seen.
type DiscoveryHandler func(record PeripheralRecord, isNew bool)

// Scanner runs time-bounded discovery over a transport.
type Scanner struct {
	transport device.Transport
	logger    *logrus.Logger
	onDevice  DiscoveryHandler
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithDiscoveryHandler installs a callback invoked as devices are discovered.
func WithDiscoveryHandler(h DiscoveryHandler) ScannerOption {
	return func(s *Scanner) {
		s.onDevice = h
	}
}

// NewScanner creates a scanner over transport.
func NewScanner(transport device.Transport, logger *logrus.Logger, opts ...ScannerOption) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Scanner{transport: transport, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan discovers peripherals for duration (DefaultScanTimeout if non-positive)
// or until ctx is done, whichever comes first. Results are in first-seen order.
// Cancelling ctx ends the scan early and returns what was collected so far.
// Concurrent scans do not share state.
func (s *Scanner) Scan(ctx context.Context, duration time.Duration) ([]PeripheralRecord, error) {
	if duration <= 0 {
		duration = DefaultScanTimeout
	}

	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var mu sync.Mutex
	seen := orderedmap.New[string, PeripheralRecord]()

	s.logger.WithField("duration", duration).Info("Starting BLE scan...")

	err := s.transport.Scan(scanCtx, func(adv device.Advertisement) {
		rec := recordFromAdvertisement(adv)
		if rec.Address == "" {
			return
		}
		key := strings.ToLower(rec.Address)

		mu.Lock()
		prev, existing := seen.Get(key)
		if existing {
			rec = prev.merge(rec)
		}
		seen.Set(key, rec)
		mu.Unlock()

		if !existing {
			s.logger.WithFields(logrus.Fields{
				"device":  rec.Name,
				"address": rec.Address,
				"rssi":    rec.RSSI,
			}).Debug("Discovered new device")
		}
		if s.onDevice != nil {
			s.onDevice(rec, !existing)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	records := make([]PeripheralRecord, 0, seen.Len())
	for pair := seen.Oldest(); pair != nil; pair = pair.Next() {
		records = append(records, pair.Value)
	}

	s.logger.WithField("device_count", len(records)).Info("BLE scan completed")
	return records, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
