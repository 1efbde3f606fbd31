// Package aggregator maintains the live heart-rate view of a session: a
// trailing time window of samples for plotting and a session-wide histogram of
// 10 bpm buckets for the "most common range" statistic.
package aggregator

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/srg/h64log/internal/telemetry"
)

const (
	// DefaultWindow is the trailing span of samples kept for plotting.
	DefaultWindow = 60 * time.Second

	// BucketWidth is the width of a histogram bucket in bpm.
	BucketWidth = 10

	flatPad       = 5
	minPad        = 3
	padProportion = 0.15
)

// Window is the aggregation state of one connected session.
//
// Samples are windowed relative to the newest sample while the bucket counts
// accumulate over the whole session until Reset. Window is safe for
// concurrent use.
type Window struct {
	span time.Duration

	mu      sync.RWMutex
	samples []telemetry.HeartRateSample
	bins    map[int]uint64
	total   uint64
}

// NewWindow creates an empty window retaining span worth of samples.
// A non-positive span selects DefaultWindow.
func NewWindow(span time.Duration) *Window {
	if span <= 0 {
		span = DefaultWindow
	}
	return &Window{
		span: span,
		bins: make(map[int]uint64),
	}
}

// Span returns the retention span of the window.
func (w *Window) Span() time.Duration {
	return w.span
}

// BucketFloor returns the lower bound of the bucket bpm falls into.
func BucketFloor(bpm uint16) int {
	return int(bpm) / BucketWidth * BucketWidth
}

// Ingest adds a sample and returns the updated view.
func (w *Window) Ingest(sample telemetry.HeartRateSample) View {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Keep samples time-ascending even if the clock stepped backwards.
	i := sort.Search(len(w.samples), func(i int) bool {
		return w.samples[i].Timestamp.After(sample.Timestamp)
	})
	w.samples = append(w.samples, telemetry.HeartRateSample{})
	copy(w.samples[i+1:], w.samples[i:])
	w.samples[i] = sample

	w.prune()

	w.bins[BucketFloor(sample.BPM)]++
	w.total++

	return w.viewLocked()
}

// prune drops samples older than the span relative to the newest sample.
func (w *Window) prune() {
	if len(w.samples) == 0 {
		return
	}
	cutoff := w.samples[len(w.samples)-1].Timestamp.Add(-w.span)
	keep := sort.Search(len(w.samples), func(i int) bool {
		return !w.samples[i].Timestamp.Before(cutoff)
	})
	if keep > 0 {
		w.samples = append(w.samples[:0], w.samples[keep:]...)
	}
}

// Reset clears all samples and bucket counts.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = nil
	w.bins = make(map[int]uint64)
	w.total = 0
}

// Len returns the number of samples currently inside the window.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.samples)
}

// Total returns the number of samples ingested since the last Reset.
func (w *Window) Total() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.total
}

// Bins returns a copy of the bucket counts keyed by bucket floor.
func (w *Window) Bins() map[int]uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	bins := make(map[int]uint64, len(w.bins))
	for k, v := range w.bins {
		bins[k] = v
	}
	return bins
}

// Samples returns a copy of the windowed samples, oldest first.
func (w *Window) Samples() []telemetry.HeartRateSample {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]telemetry.HeartRateSample(nil), w.samples...)
}

// View returns the current view without ingesting anything.
func (w *Window) View() View {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.viewLocked()
}

func (w *Window) viewLocked() View {
	v := View{Total: w.total}
	if len(w.samples) == 0 {
		return v
	}

	v.Series = make([]Point, len(w.samples))
	v.Min, v.Max = w.samples[0].BPM, w.samples[0].BPM
	for i, s := range w.samples {
		v.Series[i] = Point{Timestamp: s.Timestamp, BPM: s.BPM}
		v.Min = min(v.Min, s.BPM)
		v.Max = max(v.Max, s.BPM)
	}

	newest := w.samples[len(w.samples)-1].Timestamp
	v.XStart, v.XEnd = newest.Add(-w.span), newest
	v.AxisLow, v.AxisHigh = AxisRange(v.Min, v.Max)
	v.Modal = modal(w.bins, w.total)
	return v
}

// AxisRange pads [lo, hi] for display: a flat series gets a fixed margin,
// otherwise the margin is proportional to the span with a lower bound.
func AxisRange(lo, hi uint16) (float64, float64) {
	if lo == hi {
		return float64(lo) - flatPad, float64(hi) + flatPad
	}
	pad := math.Max(minPad, math.Round(padProportion*float64(hi-lo)))
	return float64(lo) - pad, float64(hi) + pad
}

// modal picks the most populated bucket. Ties go to the lowest bucket.
func modal(bins map[int]uint64, total uint64) *Modal {
	if total == 0 {
		return nil
	}

	best, bestCount, found := 0, uint64(0), false
	for floor, count := range bins {
		if !found || count > bestCount || (count == bestCount && floor < best) {
			best, bestCount, found = floor, count, true
		}
	}

	return &Modal{
		Floor:   best,
		Count:   bestCount,
		Percent: 100 * float64(bestCount) / float64(total),
	}
}
