package session

import (
	"context"
	"sync"

	"github.com/srg/h64log/internal/groutine"
)

const defaultActorBuffer = 64

// actor serializes the notifications of one characteristic. Enqueue blocks
// when the queue is full so no payload is lost and order is preserved.
type actor struct {
	name   string
	in     chan []byte
	quit   chan struct{}
	handle func([]byte)

	stopOnce sync.Once
	group    groutine.Group
}

func newActor(name string, buffer int, handle func([]byte)) *actor {
	if buffer <= 0 {
		buffer = defaultActorBuffer
	}
	return &actor{
		name:   name,
		in:     make(chan []byte, buffer),
		quit:   make(chan struct{}),
		handle: handle,
	}
}

func (a *actor) start(ctx context.Context) {
	a.group.Go(ctx, a.name, func(context.Context) {
		for {
			select {
			case data := <-a.in:
				a.handle(data)
			case <-a.quit:
				a.drain()
				return
			}
		}
	})
}

func (a *actor) drain() {
	for {
		select {
		case data := <-a.in:
			a.handle(data)
		default:
			return
		}
	}
}

// enqueue is the transport notification handler. Payloads arriving after
// stop are dropped.
func (a *actor) enqueue(data []byte) {
	payload := append([]byte(nil), data...)
	select {
	case a.in <- payload:
	case <-a.quit:
	}
}

// stop processes what is already queued and waits for the actor to exit.
func (a *actor) stop() {
	a.stopOnce.Do(func() { close(a.quit) })
	a.group.Wait()
}
