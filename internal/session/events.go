package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/srg/h64log/internal/groutine"
	"github.com/srg/h64log/internal/ringchan"
	"github.com/srg/h64log/internal/telemetry"
)

// DefaultEventBuffer is the per-subscriber buffer used when none is given.
const DefaultEventBuffer = 64

// EventKind discriminates Event payloads.
type EventKind int

const (
	EventSample EventKind = iota
	EventBattery
	EventStatus
)

func (k EventKind) String() string {
	switch k {
	case EventSample:
		return "sample"
	case EventBattery:
		return "battery"
	case EventStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Only the field matching Kind is set,
// except that sample events also carry the battery reading logged with them.
type Event struct {
	Kind    EventKind                 `json:"kind"`
	Time    time.Time                 `json:"time"`
	Sample  telemetry.HeartRateSample `json:"sample,omitzero"`
	Battery telemetry.BatteryReading  `json:"battery,omitzero"`
	Status  string                    `json:"status,omitempty"`
}

// ObserverFunc receives events in callback style. See Manager.Observe.
type ObserverFunc func(Event)

// Subscription is one observer's view of the event stream. Each subscription
// has its own bounded buffer; when the observer falls behind, the oldest
// undelivered events are overwritten.
type Subscription struct {
	id   uint64
	ring *ringchan.RingChannel[Event]
	bus  *bus
	once sync.Once
}

// Events returns the event channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ring.C()
}

// Overwritten returns how many events this subscriber missed.
func (s *Subscription) Overwritten() int64 {
	return s.ring.Metrics().Overwritten
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.subs.Del(s.id)
		s.ring.Close()
	})
}

type bus struct {
	subs   *hashmap.Map[uint64, *Subscription]
	nextID atomic.Uint64
}

func newBus() *bus {
	return &bus{subs: hashmap.New[uint64, *Subscription]()}
}

func (b *bus) subscribe(bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultEventBuffer
	}
	s := &Subscription{
		id:   b.nextID.Add(1),
		ring: ringchan.New[Event](bufferSize),
		bus:  b,
	}
	b.subs.Set(s.id, s)
	return s
}

func (b *bus) observe(bufferSize int, fn ObserverFunc) *Subscription {
	s := b.subscribe(bufferSize)
	groutine.Go(context.Background(), "session-observer", func(context.Context) {
		for e := range s.Events() {
			fn(e)
		}
	})
	return s
}

// publish never blocks.
func (b *bus) publish(e Event) {
	b.subs.Range(func(_ uint64, s *Subscription) bool {
		s.ring.Send(e)
		return true
	})
}

func (b *bus) closeAll() {
	var all []*Subscription
	b.subs.Range(func(_ uint64, s *Subscription) bool {
		all = append(all, s)
		return true
	})
	for _, s := range all {
		s.Close()
	}
}
