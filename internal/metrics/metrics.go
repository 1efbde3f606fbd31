// Package metrics exposes Prometheus collectors for the logging session.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "h64"

// Session results reported through SessionEnded.
const (
	ResultConnected  = "connected"
	ResultFailed     = "failed"
	ResultLost       = "lost"
	ResultDisconnect = "disconnected"
)

// Option configures a Metrics instance.
type Option func(*Metrics)

// WithRegistry registers the collectors on r instead of a fresh private registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Metrics) {
		m.registry = r
	}
}

// WithNamespace overrides the metric name prefix.
func WithNamespace(ns string) Option {
	return func(m *Metrics) {
		m.namespace = ns
	}
}

// Metrics holds the session collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	namespace string
	registry  *prometheus.Registry

	samples      prometheus.Counter
	decodeErrors *prometheus.CounterVec
	heartRate    prometheus.Gauge
	battery      prometheus.Gauge
	sessionState prometheus.Gauge
	sessions     *prometheus.CounterVec
}

// New creates and registers the collectors.
func New(opts ...Option) *Metrics {
	m := &Metrics{namespace: defaultNamespace}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	auto := promauto.With(m.registry)

	m.samples = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "samples_total",
		Help:      "Heart-rate samples accepted and logged",
	})
	m.decodeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "decode_errors_total",
		Help:      "Notification payloads discarded because they could not be decoded",
	}, []string{"characteristic"})
	m.heartRate = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "heart_rate_bpm",
		Help:      "Most recent heart rate",
	})
	m.battery = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "battery_percent",
		Help:      "Most recent battery level, -1 when unknown",
	})
	m.sessionState = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "session_state",
		Help:      "Lifecycle state: 0 idle, 1 scanning, 2 connecting, 3 connected, 4 disconnecting",
	})
	m.sessions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "sessions_total",
		Help:      "Connection attempts and session endings by result",
	}, []string{"result"})

	m.battery.Set(-1)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SampleRecorded counts a logged sample and updates the heart-rate gauge.
func (m *Metrics) SampleRecorded(bpm uint16) {
	if m == nil {
		return
	}
	m.samples.Inc()
	m.heartRate.Set(float64(bpm))
}

// DecodeFailed counts a discarded payload for the given characteristic name.
func (m *Metrics) DecodeFailed(characteristic string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(characteristic).Inc()
}

// BatteryUpdated sets the battery gauge; known=false resets it to -1.
func (m *Metrics) BatteryUpdated(percent uint8, known bool) {
	if m == nil {
		return
	}
	if !known {
		m.battery.Set(-1)
		return
	}
	m.battery.Set(float64(percent))
}

// StateChanged records the numeric lifecycle state.
func (m *Metrics) StateChanged(state int) {
	if m == nil {
		return
	}
	m.sessionState.Set(float64(state))
}

// SessionEnded counts a session outcome, one of the Result constants.
func (m *Metrics) SessionEnded(result string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(result).Inc()
}
