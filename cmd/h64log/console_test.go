package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/srg/h64log/internal/session"
	"github.com/srg/h64log/internal/telemetry"
	"github.com/srg/h64log/internal/testutils"
	"github.com/stretchr/testify/assert"
)

func TestConsole_PrintsEvents(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)
	events := make(chan session.Event, 8)
	events <- session.Event{Kind: session.EventStatus, Status: session.StatusScanning}
	events <- session.Event{Kind: session.EventStatus, Status: "scan done: 1 device(s)"}
	events <- session.Event{Kind: session.EventBattery, Battery: telemetry.NewBatteryReading(85)}
	events <- session.Event{Kind: session.EventSample, Sample: telemetry.HeartRateSample{Timestamp: ts, BPM: 72}, Battery: telemetry.NewBatteryReading(85)}
	events <- session.Event{Kind: session.EventSample, Sample: telemetry.HeartRateSample{Timestamp: ts.Add(time.Second), BPM: 73}}
	events <- session.Event{Kind: session.EventStatus, Status: session.StatusConnectionLost}
	close(events)

	var out bytes.Buffer
	newConsole(&out, false, nil).run(events)

	testutils.NewTextAsserter(t).AssertLines(out.String(),
		"scan done: 1 device(s)",
		"Battery: 85%",
		"2025-03-14T09:26:53  BPM=72  Battery=85%",
		"2025-03-14T09:26:54  BPM=73  Battery=-%",
		"connection lost",
	)
}

func TestConsole_Colors(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(&out, true, nil)

	c.print(session.Event{Kind: session.EventStatus, Status: "connected: AA (logging → x.csv)"})
	c.print(session.Event{Kind: session.EventStatus, Status: "connect failed: boom"})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "\x1b[32m"), "connected is green: %q", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "\x1b[31m"), "failures are red: %q", lines[1])
	assert.Equal(t, "connect failed: boom", testutils.StripANSI(lines[1]))
}

func TestConsole_ScanStatusStopsProgress(t *testing.T) {
	out := &syncBuffer{}
	progress := NewCountdownProgressPrinter(out, "Scanning", "scanning", time.Minute)
	progress.Start()

	newConsole(out, false, progress).print(session.Event{Kind: session.EventStatus, Status: "scan done: 0 device(s)"})

	assert.True(t, strings.HasSuffix(out.String(), clearLineSequence+"scan done: 0 device(s)\n"), "%q", out.String())
}

func TestIsFailureStatus(t *testing.T) {
	for msg, want := range map[string]bool{
		"connection lost":                   true,
		"already connected":                 true,
		"no address (paste it or Scan)":     true,
		"log write error: disk full":        true,
		"notify failed: denied":             true,
		"scan error: bluetooth_off":         true,
		"disconnected":                      false,
		"connecting to AA…":                 false,
		"connected: AA (logging → out.csv)": false,
		"logging stopped":                   true,
		"scan cancelled":                    false,
	} {
		assert.Equal(t, want, isFailureStatus(msg), msg)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
