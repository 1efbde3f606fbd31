package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/srg/h64log/internal/device"
	"github.com/srg/h64log/internal/logsink"
)

// Command-level errors
var (
	// ErrDeviceNotFound is returned after the not-found tips were printed.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrSessionEnded indicates logging stopped without Ctrl+C, because the
	// link dropped or the log file could not be written.
	ErrSessionEnded = errors.New("session ended unexpectedly")
)

var notFoundTips = []string{
	"Device not found. Tips:",
	"- Make sure H64 is worn (awake)",
	"- Ensure H64 is not connected to another app",
	"- Run with --list to see devices, then use --address or --name",
}

func printNotFoundTips(w io.Writer) {
	for _, line := range notFoundTips {
		fmt.Fprintln(w, line)
	}
}

// FormatUserError turns err into the message printed after "ERROR:".
// Known transport and file errors get a hint; anything else prints as is.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var ioErr *logsink.IOError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is off, turn it on and try again"
	case errors.Is(err, device.ErrAlreadyConnected):
		return "the strap is busy, disconnect it from other apps first"
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out waiting for the strap (%v)", err)
	case errors.As(err, &ioErr):
		return fmt.Sprintf("cannot %s log file %s: %v", ioErr.Op, ioErr.Path, ioErr.Err)
	default:
		return err.Error()
	}
}
