package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter rewrites a single terminal line with a countdown:
//
//	Scanning (scanning 9s)
//
// The caller must call Stop to release resources and terminate the internal
// goroutine. A ProgressPrinter is single-use. All methods are no-ops on a
// nil *ProgressPrinter, so callers can skip it when output is not a terminal.
type ProgressPrinter struct {
	w         io.Writer
	prefix    string
	phase     string
	duration  time.Duration
	startTime time.Time

	// mu serializes writes to w between the ticker goroutine and Stop.
	mu       sync.Mutex
	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewCountdownProgressPrinter creates a progress printer that counts down from duration.
func NewCountdownProgressPrinter(w io.Writer, prefix string, phase string, duration time.Duration) *ProgressPrinter {
	return &ProgressPrinter{
		w:        w,
		prefix:   prefix,
		phase:    phase,
		duration: duration,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if p == nil {
		return
	}
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.startTime = time.Now()
	p.print(p.remaining())

	ticker := time.NewTicker(progressUpdateInterval)
	go func() {
		defer close(p.done)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.print(p.remaining())
			}
		}
	}()
}

// remaining rounds the time left to the nearest second, never below zero.
func (p *ProgressPrinter) remaining() int {
	left := p.duration - time.Since(p.startTime)
	if left <= 0 {
		return 0
	}
	return int(left.Seconds() + 0.5)
}

func (p *ProgressPrinter) print(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.stopChan:
		return
	default:
	}
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, p.phase, seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, p.phase)
	}
}

// Stop stops the progress display and clears the line. It is safe to call
// multiple times, from multiple goroutines and before Start.
func (p *ProgressPrinter) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		p.mu.Lock()
		close(p.stopChan)
		p.mu.Unlock()

		if p.started.Load() {
			<-p.done
			fmt.Fprint(p.w, clearLineSequence)
		}
	})
}
