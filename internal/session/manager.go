// Package session drives one BLE heart-rate logging session at a time:
// connection lifecycle, notification dispatch, aggregation and CSV logging.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/h64log/internal/aggregator"
	"github.com/srg/h64log/internal/device"
	"github.com/srg/h64log/internal/groutine"
	"github.com/srg/h64log/internal/logsink"
	"github.com/srg/h64log/internal/metrics"
	"github.com/srg/h64log/internal/resolver"
	"github.com/srg/h64log/internal/telemetry"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultIOTimeout      = 10 * time.Second
)

// Status messages that are not parameterized.
const (
	StatusScanning         = "scanning…"
	StatusScanCancelled    = "scan cancelled"
	StatusDisconnecting    = "disconnecting…"
	StatusDisconnected     = "disconnected"
	StatusConnectionLost   = "connection lost"
	StatusLoggingStopped   = "logging stopped"
	StatusAlreadyConnected = "already connected"
)

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("session manager closed")

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the sample timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithMetrics records session metrics in mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithWindow sets the aggregation window span.
func WithWindow(span time.Duration) Option {
	return func(m *Manager) { m.window = aggregator.NewWindow(span) }
}

// WithTimeouts bounds the connect step and each characteristic operation.
// Non-positive values keep the defaults.
func WithTimeouts(connect, io time.Duration) Option {
	return func(m *Manager) {
		if connect > 0 {
			m.connectTimeout = connect
		}
		if io > 0 {
			m.ioTimeout = io
		}
	}
}

// WithActorBuffer sets the per-characteristic notification queue length.
func WithActorBuffer(n int) Option {
	return func(m *Manager) { m.actorBuffer = n }
}

// Manager owns the lifecycle state, the battery reading, the aggregation
// window and the open log file. All public methods are safe for concurrent use.
type Manager struct {
	transport device.Transport
	scanner   *resolver.Scanner
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
	window    *aggregator.Window
	bus       *bus

	connectTimeout time.Duration
	ioTimeout      time.Duration
	actorBuffer    int

	mu            sync.Mutex
	state         State
	battery       telemetry.BatteryReading
	live          *liveSession
	cancelAttempt context.CancelFunc
	attemptDone   chan struct{}
	closed        bool
}

type liveSession struct {
	id     string
	target resolver.PeripheralRecord
	client device.Client
	sink   *logsink.Sink
	logger *logrus.Entry

	hr            *actor
	battery       *actor
	hrSubscribed  bool
	batSubscribed bool

	failed   atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (s *liveSession) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// NewManager creates an idle Manager over transport.
func NewManager(transport device.Transport, logger *logrus.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	m := &Manager{
		transport:      transport,
		logger:         logger,
		clock:          time.Now,
		window:         aggregator.NewWindow(aggregator.DefaultWindow),
		bus:            newBus(),
		connectTimeout: DefaultConnectTimeout,
		ioTimeout:      DefaultIOTimeout,
		actorBuffer:    defaultActorBuffer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.scanner = resolver.NewScanner(transport, logger)
	m.metrics.StateChanged(int(Idle))
	m.metrics.BatteryUpdated(0, false)
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Battery returns the latest battery reading of the live session.
func (m *Manager) Battery() telemetry.BatteryReading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.battery
}

// View returns the current aggregation view.
func (m *Manager) View() aggregator.View {
	return m.window.View()
}

// LogPath returns the CSV path of the live session, or "".
func (m *Manager) LogPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return ""
	}
	return m.live.sink.Path()
}

// SessionID returns the identifier of the live session, or "".
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return ""
	}
	return m.live.id
}

// SessionDone returns a channel closed when the current session ends. With
// no live session the channel is already closed.
func (m *Manager) SessionDone() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return m.live.done
}

// Subscribe registers an observer with a bounded buffer of bufferSize events.
func (m *Manager) Subscribe(bufferSize int) *Subscription {
	return m.bus.subscribe(bufferSize)
}

// Observe calls fn for every event on a dedicated goroutine until the
// returned subscription is closed.
func (m *Manager) Observe(bufferSize int, fn ObserverFunc) *Subscription {
	return m.bus.observe(bufferSize, fn)
}

// Scan runs a discovery pass. It is only allowed while Idle. Cancelling
// ctx or calling Disconnect ends the scan with an error wrapping
// context.Canceled instead of returning partial results.
func (m *Manager) Scan(ctx context.Context, duration time.Duration) ([]resolver.PeripheralRecord, error) {
	attemptCtx, finish, err := m.beginAttempt(ctx, "scan", Scanning)
	if err != nil {
		return nil, err
	}
	defer finish()

	return m.scan(attemptCtx, duration, Idle)
}

// scan discovers peripherals within an attempt and moves to next on success.
// On failure the state returns to Idle.
func (m *Manager) scan(attemptCtx context.Context, duration time.Duration, next State) ([]resolver.PeripheralRecord, error) {
	m.status(StatusScanning)
	results, err := m.scanner.Scan(attemptCtx, duration)
	if cerr := attemptCtx.Err(); cerr != nil {
		m.setState(Idle)
		m.status(StatusScanCancelled)
		return nil, fmt.Errorf("scan cancelled: %w", cerr)
	}
	if err != nil {
		m.setState(Idle)
		m.status(fmt.Sprintf("scan error: %v", err))
		return nil, err
	}
	m.setState(next)
	m.status(fmt.Sprintf("scan done: %d device(s)", len(results)))
	return results, nil
}

// ScanAndConnect scans, resolves the target by address or name hint and
// connects to it. Scan and connect share one attempt, so Disconnect at any
// point stops it before a connection is made or a log file is opened.
func (m *Manager) ScanAndConnect(ctx context.Context, address, nameHint string, duration time.Duration, logPath string) (resolver.PeripheralRecord, error) {
	attemptCtx, finish, err := m.beginAttempt(ctx, "scan", Scanning)
	if err != nil {
		return resolver.PeripheralRecord{}, err
	}
	defer finish()

	results, err := m.scan(attemptCtx, duration, Connecting)
	if err != nil {
		return resolver.PeripheralRecord{}, err
	}
	target, err := resolver.Resolve(address, nameHint, results)
	if err != nil {
		m.setState(Idle)
		return resolver.PeripheralRecord{}, err
	}
	return target, m.connect(attemptCtx, target, logPath)
}

// Connect opens the log file, connects to target and subscribes to its
// heart-rate and battery notifications. Battery failures are tolerated;
// a heart-rate subscription failure tears the attempt down. On success the
// state is Connected.
func (m *Manager) Connect(ctx context.Context, target resolver.PeripheralRecord, logPath string) error {
	if target.Address == "" {
		m.status(resolver.ErrNoAddress.Error())
		return resolver.ErrNoAddress
	}

	attemptCtx, finish, err := m.beginAttempt(ctx, "connect", Connecting)
	if err != nil {
		var pv *PolicyViolation
		if errors.As(err, &pv) && (pv.State == Connected || pv.State == Connecting) {
			m.status(StatusAlreadyConnected)
		}
		return err
	}
	defer finish()

	return m.connect(attemptCtx, target, logPath)
}

// connect runs the Connecting phase of an attempt.
func (m *Manager) connect(attemptCtx context.Context, target resolver.PeripheralRecord, logPath string) error {
	if err := attemptCtx.Err(); err != nil {
		m.status(fmt.Sprintf("connect failed: %v", err))
		m.fail()
		return err
	}

	m.resetReadings()

	sink, err := logsink.Open(logPath)
	if err != nil {
		m.status(fmt.Sprintf("log file error: %v", err))
		m.fail()
		return err
	}

	addr := target.Address
	m.status(fmt.Sprintf("connecting to %s…", addr))

	connectCtx, cancel := context.WithTimeout(attemptCtx, m.connectTimeout)
	client, err := m.transport.Connect(connectCtx, addr)
	cancel()
	if err != nil {
		m.status(fmt.Sprintf("connect failed: %v", err))
		if cerr := sink.Close(); cerr != nil {
			m.logger.WithError(cerr).Warn("Failed to close log file")
		}
		m.fail()
		return err
	}

	s := &liveSession{
		id:     uuid.NewString(),
		target: target,
		client: client,
		sink:   sink,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.logger = m.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"address":    addr,
	})
	s.hr = newActor("hr-actor", m.actorBuffer, func(data []byte) { m.onHeartRate(s, data) })
	s.battery = newActor("battery-actor", m.actorBuffer, func(data []byte) { m.onBattery(s, data) })
	s.hr.start(context.Background())
	s.battery.start(context.Background())

	m.readBattery(attemptCtx, s)

	if err := m.subscribe(attemptCtx, client, device.BatteryLevelUUID, s.battery.enqueue); err != nil {
		s.logger.WithError(err).Info("Battery notifications unavailable")
	} else {
		s.batSubscribed = true
	}

	if err := m.subscribe(attemptCtx, client, device.HeartRateMeasurementUUID, s.hr.enqueue); err != nil {
		m.status(fmt.Sprintf("notify failed: %v", err))
		m.release(s)
		m.fail()
		return err
	}
	s.hrSubscribed = true

	m.mu.Lock()
	if err := attemptCtx.Err(); err != nil {
		m.mu.Unlock()
		m.status(fmt.Sprintf("connect failed: %v", err))
		m.release(s)
		m.fail()
		return err
	}
	m.live = s
	m.setStateLocked(Connected)
	m.mu.Unlock()

	groutine.Go(context.Background(), "link-watch", func(context.Context) { m.watchLink(s) })

	s.logger.WithField("log_path", sink.Path()).Info("Session started")
	m.metrics.SessionEnded(metrics.ResultConnected)
	m.status(fmt.Sprintf("connected: %s (logging → %s)", addr, sink.Path()))
	return nil
}

// Disconnect cancels an in-flight scan or connect and tears down the live
// session, if any. It is a no-op while Idle.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	cancel, attemptDone := m.cancelAttempt, m.attemptDone
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-attemptDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	s := m.live
	m.mu.Unlock()
	if s == nil {
		return nil
	}

	m.teardown(s, StatusDisconnected, metrics.ResultDisconnect)

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects and detaches every subscriber. The Manager cannot be
// reused afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.Disconnect(ctx)
	m.bus.closeAll()
	return err
}

// beginAttempt moves Idle to next and returns a context cancelled by
// Disconnect. finish must be called when the attempt is over.
func (m *Manager) beginAttempt(ctx context.Context, op string, next State) (context.Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, ErrClosed
	}
	if m.state != Idle {
		return nil, nil, &PolicyViolation{Op: op, State: m.state}
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancelAttempt, m.attemptDone = cancel, done
	m.setStateLocked(next)

	finish := func() {
		m.mu.Lock()
		if m.attemptDone == done {
			m.cancelAttempt, m.attemptDone = nil, nil
		}
		m.mu.Unlock()
		cancel()
		close(done)
	}
	return attemptCtx, finish, nil
}

func (m *Manager) resetReadings() {
	m.window.Reset()
	m.mu.Lock()
	m.battery = telemetry.BatteryReading{}
	m.mu.Unlock()
	m.metrics.BatteryUpdated(0, false)
}

// fail returns a failed attempt to Idle.
func (m *Manager) fail() {
	m.resetReadings()
	m.setState(Idle)
	m.metrics.SessionEnded(metrics.ResultFailed)
}

func (m *Manager) readBattery(ctx context.Context, s *liveSession) {
	ioCtx, cancel := context.WithTimeout(ctx, m.ioTimeout)
	defer cancel()

	data, err := s.client.ReadCharacteristic(ioCtx, device.BatteryLevelUUID)
	if err != nil {
		s.logger.WithError(err).Info("Battery read failed")
		return
	}
	pct, err := telemetry.DecodeBattery(data)
	if err != nil {
		m.metrics.DecodeFailed("battery")
		s.logger.WithError(err).Info("Battery read failed")
		return
	}
	s.logger.WithField("battery_percent", pct).Info("Battery read")
	m.updateBattery(pct)
}

func (m *Manager) subscribe(ctx context.Context, client device.Client, uuid string, handler device.NotificationHandler) error {
	ioCtx, cancel := context.WithTimeout(ctx, m.ioTimeout)
	defer cancel()
	return client.Subscribe(ioCtx, uuid, handler)
}

func (m *Manager) onHeartRate(s *liveSession, data []byte) {
	if s.failed.Load() {
		return
	}

	bpm, err := telemetry.DecodeHeartRate(data)
	if err != nil {
		m.metrics.DecodeFailed("heart_rate")
		s.logger.WithError(err).Debug("Discarding heart-rate payload")
		return
	}

	sample := telemetry.HeartRateSample{Timestamp: m.clock(), BPM: bpm}
	m.window.Ingest(sample)

	battery := m.Battery()
	if err := s.sink.Append(sample, battery); err != nil {
		s.failed.Store(true)
		s.logger.WithError(err).Error("Log write failed")
		m.status(fmt.Sprintf("log write error: %v", err))
		// Teardown waits for this actor, so it cannot run on it.
		groutine.Go(context.Background(), "teardown", func(context.Context) {
			m.teardown(s, StatusLoggingStopped, metrics.ResultFailed)
		})
		return
	}

	m.metrics.SampleRecorded(bpm)
	m.bus.publish(Event{Kind: EventSample, Time: sample.Timestamp, Sample: sample, Battery: battery})
}

func (m *Manager) onBattery(s *liveSession, data []byte) {
	pct, err := telemetry.DecodeBattery(data)
	if err != nil {
		m.metrics.DecodeFailed("battery")
		s.logger.WithError(err).Debug("Discarding battery payload")
		return
	}
	m.updateBattery(pct)
}

func (m *Manager) updateBattery(pct uint8) {
	reading := telemetry.NewBatteryReading(pct)
	m.mu.Lock()
	m.battery = reading
	m.mu.Unlock()

	m.metrics.BatteryUpdated(pct, true)
	m.bus.publish(Event{Kind: EventBattery, Time: m.clock(), Battery: reading})
}

func (m *Manager) watchLink(s *liveSession) {
	select {
	case <-s.client.Disconnected():
		m.teardown(s, StatusConnectionLost, metrics.ResultLost)
	case <-s.stop:
	}
}

// teardown ends s once, whichever of Disconnect, link loss or a write
// failure gets here first. Later callers return immediately.
func (m *Manager) teardown(s *liveSession, finalStatus, result string) {
	m.mu.Lock()
	if m.live != s || m.state != Connected {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(Disconnecting)
	m.mu.Unlock()

	if finalStatus == StatusDisconnected {
		m.status(StatusDisconnecting)
	}

	m.release(s)
	m.resetReadings()

	m.mu.Lock()
	m.live = nil
	m.setStateLocked(Idle)
	m.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"rows":   s.sink.Rows(),
		"result": result,
	}).Info("Session ended")
	m.metrics.SessionEnded(result)
	// Published before done so waiters on SessionDone have seen it.
	m.status(finalStatus)
	close(s.done)
}

// release unsubscribes, disconnects, drains the actors and closes the log
// file. Transport errors are logged and otherwise ignored.
func (m *Manager) release(s *liveSession) {
	s.halt()

	ctx := context.Background()
	if s.hrSubscribed {
		m.unsubscribe(ctx, s, device.HeartRateMeasurementUUID)
	}
	if s.batSubscribed {
		m.unsubscribe(ctx, s, device.BatteryLevelUUID)
	}

	if err := s.client.Disconnect(); err != nil {
		s.logger.WithError(err).Debug("Disconnect failed")
	}

	s.hr.stop()
	s.battery.stop()

	if err := s.sink.Close(); err != nil {
		s.logger.WithError(err).Warn("Failed to close log file")
	}
}

func (m *Manager) unsubscribe(ctx context.Context, s *liveSession, uuid string) {
	ioCtx, cancel := context.WithTimeout(ctx, m.ioTimeout)
	defer cancel()
	if err := s.client.Unsubscribe(ioCtx, uuid); err != nil {
		s.logger.WithError(err).WithField("uuid", device.ShortenUUID(uuid)).Debug("Unsubscribe failed")
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStateLocked(s)
}

func (m *Manager) setStateLocked(s State) {
	if m.state != s {
		m.logger.WithFields(logrus.Fields{"from": m.state, "to": s}).Debug("Session state")
	}
	m.state = s
	m.metrics.StateChanged(int(s))
}

func (m *Manager) status(msg string) {
	m.logger.WithField("status", msg).Info("Session status")
	m.bus.publish(Event{Kind: EventStatus, Time: m.clock(), Status: msg})
}
