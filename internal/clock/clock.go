// Package clock abstracts wall time and one-shot timers so timing policies can be
// driven by a manual clock in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a one-shot scheduled callback.
type Timer interface {
	// Stop cancels the timer. It returns false if the timer already fired or was stopped.
	Stop() bool
}

// Clock supplies the current time and schedules one-shot callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real is the wall clock.
type Real struct{}

// Verify Real implements Clock
var _ Clock = Real{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Manual is a clock that only moves when Advance or Set is called.
// Due callbacks run synchronously on the goroutine that advances the clock,
// in deadline order, outside the clock's lock.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	nextID  uint64
	pending map[uint64]*manualTimer
}

// Verify Manual implements Clock
var _ Clock = (*Manual)(nil)

type manualTimer struct {
	clock    *Manual
	id       uint64
	deadline time.Time
	fn       func()
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:     start,
		pending: make(map[uint64]*manualTimer),
	}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{
		clock:    m,
		id:       m.nextID,
		deadline: m.now.Add(d),
		fn:       fn,
	}
	m.nextID++
	m.pending[t.id] = t
	return t
}

// Advance moves the clock forward by d, firing every timer that comes due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	m.Set(target)
}

// Set moves the clock to t, firing every timer whose deadline is at or before t.
// Timers scheduled by callbacks are honoured if they also fall due before t.
func (m *Manual) Set(t time.Time) {
	for {
		m.mu.Lock()
		next := m.nextDueLocked(t)
		if next == nil {
			if t.After(m.now) {
				m.now = t
			}
			m.mu.Unlock()
			return
		}
		delete(m.pending, next.id)
		if next.deadline.After(m.now) {
			m.now = next.deadline
		}
		m.mu.Unlock()

		next.fn()
	}
}

// PendingTimers returns how many timers are armed and not yet fired.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// nextDueLocked returns the earliest timer due at or before t. Must be called with mu held.
func (m *Manual) nextDueLocked(t time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(m.pending))
	for _, timer := range m.pending {
		if !timer.deadline.After(t) {
			due = append(due, timer)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due[0]
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if _, ok := t.clock.pending[t.id]; !ok {
		return false
	}
	delete(t.clock.pending, t.id)
	return true
}
