package events

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatcher_RunsTasksInSubmissionOrder(t *testing.T) {
	d := NewDispatcher("order", zaptest.NewLogger(t).Sugar())
	defer d.Close()

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		d.Submit(func() { got = append(got, i) })
	}
	d.Flush()

	assert.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcher_TasksNeverOverlap(t *testing.T) {
	d := NewDispatcher("serial", zaptest.NewLogger(t).Sugar())
	defer d.Close()

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	wg.Add(20)
	for i := 0; i < 20; i++ {
		go func() {
			defer wg.Done()
			d.Submit(func() {
				n := running.Add(1)
				if n > maxRunning.Load() {
					maxRunning.Store(n)
				}
				running.Add(-1)
			})
		}()
	}
	wg.Wait()
	d.Flush()

	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestDispatcher_PanicDoesNotStopLane(t *testing.T) {
	d := NewDispatcher("panicky", zaptest.NewLogger(t).Sugar())
	defer d.Close()

	ran := false
	d.Submit(func() { panic("listener bug") })
	d.Submit(func() { ran = true })
	d.Flush()

	assert.True(t, ran)
}

func TestDispatcher_CloseDrainsAndRejects(t *testing.T) {
	d := NewDispatcher("close", zaptest.NewLogger(t).Sugar())

	count := 0
	for i := 0; i < 10; i++ {
		d.Submit(func() { count++ })
	}
	d.Close()
	d.Close()

	assert.Equal(t, 10, count)
	assert.False(t, d.Submit(func() {}))
	d.Flush()
}

func TestDispatcher_NilTaskPanics(t *testing.T) {
	d := NewDispatcher("nil", zaptest.NewLogger(t).Sugar())
	defer d.Close()
	assert.Panics(t, func() { d.Submit(nil) })
}
