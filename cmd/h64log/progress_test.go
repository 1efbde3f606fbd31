package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressPrinter_Countdown(t *testing.T) {
	out := &syncBuffer{}
	p := NewCountdownProgressPrinter(out, "Scanning", "scanning", 12*time.Second)

	p.Start()
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "\r") >= 2
	}, time.Second, progressUpdateInterval/4)
	p.Stop()

	got := out.String()
	assert.True(t, strings.HasPrefix(got, "\rScanning (scanning 12s)"), "%q", got)
	assert.True(t, strings.HasSuffix(got, clearLineSequence), "%q", got)

	p.Stop()
	assert.Equal(t, got, out.String(), "second Stop writes nothing")
}

func TestProgressPrinter_Expired(t *testing.T) {
	out := &syncBuffer{}
	p := NewCountdownProgressPrinter(out, "Scanning", "scanning", 0)
	p.Start()
	p.Stop()

	assert.True(t, strings.HasPrefix(out.String(), "\rScanning (scanning...)"), "%q", out.String())
}

func TestProgressPrinter_StopBeforeStart(t *testing.T) {
	out := &syncBuffer{}
	p := NewCountdownProgressPrinter(out, "Scanning", "scanning", time.Minute)
	p.Stop()
	p.Start()

	assert.Empty(t, out.String(), "a stopped printer stays silent")
}

func TestProgressPrinter_StartTwicePanics(t *testing.T) {
	p := NewCountdownProgressPrinter(&syncBuffer{}, "Scanning", "scanning", time.Second)
	p.Start()
	defer p.Stop()

	assert.Panics(t, p.Start)
}

func TestProgressPrinter_Nil(t *testing.T) {
	var p *ProgressPrinter
	assert.NotPanics(t, func() {
		p.Start()
		p.Stop()
	})
}
