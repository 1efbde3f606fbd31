// Package devicefactory selects the BLE transport used by the commands.
package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/h64log/internal/device"
	"github.com/srg/h64log/internal/device/go-ble"
)

// TransportFactory creates the device.Transport for scans and connections.
// This is a variable so that it can be overridden in tests.
var TransportFactory = func(logger *logrus.Logger) device.Transport {
	return goble.NewTransport(logger)
}

// NewTransport creates a transport through TransportFactory.
func NewTransport(logger *logrus.Logger) device.Transport {
	return TransportFactory(logger)
}
