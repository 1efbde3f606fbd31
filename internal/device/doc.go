// Package device defines the BLE transport capability consumed by the rest of
// the module: peripheral discovery, connection, characteristic reads and
// notification subscriptions.
//
// The package carries no implementation of its own. The go-ble subpackage
// adapts github.com/go-ble/ble to these interfaces, and tests substitute a
// fake transport built with internal/testutils.
package device
