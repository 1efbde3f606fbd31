package devicefactory

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/h64log/internal/device"
	"github.com/srg/h64log/internal/device/go-ble"
	"github.com/srg/h64log/internal/testutils"
	"github.com/stretchr/testify/assert"
)

func TestNewTransport_Default(t *testing.T) {
	tr := NewTransport(logrus.New())
	assert.IsType(t, &goble.Transport{}, tr)
}

func TestNewTransport_Override(t *testing.T) {
	original := TransportFactory
	t.Cleanup(func() { TransportFactory = original })

	fake := testutils.NewFakeTransport()
	TransportFactory = func(*logrus.Logger) device.Transport { return fake }

	assert.Same(t, fake, NewTransport(nil))
}
