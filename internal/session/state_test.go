package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "scanning", Scanning.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnecting", Disconnecting.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestPolicyViolationMessage(t *testing.T) {
	assert.Equal(t, "already connected", (&PolicyViolation{Op: "connect", State: Connecting}).Error())
	assert.Equal(t, "scan not allowed while connected", (&PolicyViolation{Op: "scan", State: Connected}).Error())
}

func TestSubscriptionClose(t *testing.T) {
	b := newBus()
	sub := b.subscribe(0)
	assert.Equal(t, DefaultEventBuffer, cap(sub.Events()))

	b.publish(Event{Kind: EventStatus, Status: "one"})
	sub.Close()
	sub.Close()
	b.publish(Event{Kind: EventStatus, Status: "two"})

	var got []string
	for e := range sub.Events() {
		got = append(got, e.Status)
	}
	assert.Equal(t, []string{"one"}, got)
	assert.Zero(t, b.subs.Len())
}

func TestActorDrainsOnStop(t *testing.T) {
	var got []byte
	a := newActor("test", 8, func(data []byte) { got = append(got, data[0]) })
	for i := byte(0); i < 5; i++ {
		a.enqueue([]byte{i})
	}
	a.start(nil)
	a.stop()

	assert.Equal(t, []byte{0, 1, 2, 3, 4}, got)

	a.enqueue([]byte{9})
	assert.Len(t, got, 5)
}
