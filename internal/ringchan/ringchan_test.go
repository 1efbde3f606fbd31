package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](rc *RingChannel[T]) []T {
	var out []T
	for v := range rc.C() {
		out = append(out, v)
	}
	return out
}

func TestNewPanicsOnInvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
	assert.Panics(t, func() { New[int](-1) })
}

func TestSendOverwritesOldest(t *testing.T) {
	rc := New[int](3)
	for i := 0; i < 10; i++ {
		rc.Send(i)
	}
	rc.Close()

	assert.Equal(t, []int{7, 8, 9}, drain(rc))

	m := rc.Metrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
	assert.Zero(t, m.Dropped)
}

func TestSendReportsOverwrite(t *testing.T) {
	rc := New[string](1)

	assert.False(t, rc.Send("a"))
	assert.True(t, rc.Send("b"))

	v := <-rc.C()
	assert.Equal(t, "b", v)
}

func TestTrySend(t *testing.T) {
	rc := New[int](1)

	assert.True(t, rc.TrySend(1))
	assert.False(t, rc.TrySend(2))
	assert.Equal(t, 1, rc.Len())
	assert.Equal(t, 1, rc.Cap())
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Close()
	rc.Close()

	require.NotPanics(t, func() {
		rc.Send(2)
		rc.TrySend(3)
	})
	assert.True(t, rc.Closed())
	assert.Equal(t, []int{1}, drain(rc))
	assert.Equal(t, int64(2), rc.Metrics().Dropped)
}

func TestConcurrentSendAndClose(t *testing.T) {
	rc := New[int](4)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rc.Send(i)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range rc.C() {
		}
	}()

	wg.Wait()
	rc.Close()
	<-done

	m := rc.Metrics()
	assert.Equal(t, int64(4000), m.Written)
}
