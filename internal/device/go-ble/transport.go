package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/h64log/internal/device"
)

// DeviceFactory creates the host ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Transport implements device.Transport on top of go-ble.
// The host device is opened lazily on first use and shared by scans and connections.
type Transport struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewTransport creates a go-ble backed transport.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

func (t *Transport) hostDevice() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev != nil {
		return t.dev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		t.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, NormalizeError(err)
	}
	t.dev = dev
	return dev, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (t *Transport) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := t.hostDevice()
	if err != nil {
		return &device.TransportError{Op: "scan", Err: err}
	}

	t.logger.Debug("Starting BLE scan...")
	err = dev.Scan(ctx, false, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return &device.TransportError{Op: "scan", Err: NormalizeError(err)}
	}
	t.logger.Debug("BLE scan finished")
	return nil
}

// Connect dials the peripheral and discovers its GATT profile.
func (t *Transport) Connect(ctx context.Context, address string) (device.Client, error) {
	if strings.TrimSpace(address) == "" {
		return nil, &device.TransportError{Op: "connect", Err: errors.New("device address is empty")}
	}

	dev, err := t.hostDevice()
	if err != nil {
		return nil, &device.TransportError{Op: "connect", Address: address, Err: err}
	}

	t.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, &device.TransportError{Op: "connect", Address: address, Err: NormalizeError(err)}
	}

	t.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			t.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, &device.TransportError{Op: "connect", Address: address, Err: fmt.Errorf("failed to discover profile: %w", NormalizeError(err))}
	}

	t.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
	}).Info("BLE device connected")

	return newClient(address, client, profile, t.logger), nil
}
