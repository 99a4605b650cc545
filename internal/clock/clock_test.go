package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)

func TestManual_AdvanceFiresDueTimersInOrder(t *testing.T) {
	c := NewManual(epoch)

	var fired []string
	c.AfterFunc(3*time.Second, func() { fired = append(fired, "three") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "one") })
	c.AfterFunc(5*time.Second, func() { fired = append(fired, "five") })

	c.Advance(3 * time.Second)
	assert.Equal(t, []string{"one", "three"}, fired)
	assert.Equal(t, epoch.Add(3*time.Second), c.Now())
	assert.Equal(t, 1, c.PendingTimers())

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"one", "three", "five"}, fired)
	assert.Equal(t, 0, c.PendingTimers())
}

func TestManual_CallbackSeesDeadlineAsNow(t *testing.T) {
	c := NewManual(epoch)

	var seen time.Time
	c.AfterFunc(2*time.Second, func() { seen = c.Now() })

	c.Advance(10 * time.Second)
	assert.Equal(t, epoch.Add(2*time.Second), seen)
	assert.Equal(t, epoch.Add(10*time.Second), c.Now())
}

func TestManual_StopPreventsFiring(t *testing.T) {
	c := NewManual(epoch)

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestManual_StopAfterFireReturnsFalse(t *testing.T) {
	c := NewManual(epoch)
	timer := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	assert.False(t, timer.Stop())
}

func TestManual_RearmFromCallback(t *testing.T) {
	c := NewManual(epoch)

	count := 0
	var arm func()
	arm = func() {
		c.AfterFunc(5*time.Second, func() {
			count++
			if count < 3 {
				arm()
			}
		})
	}
	arm()

	c.Advance(12 * time.Second)
	assert.Equal(t, 2, count)

	c.Advance(3 * time.Second)
	assert.Equal(t, 3, count)
}

func TestReal_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for real timer")
	}
}
