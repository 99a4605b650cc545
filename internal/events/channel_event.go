package events

import (
	"sync"
	"sync/atomic"
)

// ChannelEvent provides pub/sub behavior using channels.
// Sends are non-blocking: a listener whose channel is full misses that value, and the
// miss is counted. Use it for advisory notifications where the latest value matters
// more than every value (telemetry, config reloads).
type ChannelEvent[T any] struct {
	mu         sync.RWMutex
	channels   map[uint64]chan<- T
	nextID     uint64
	replayLast bool
	lastEvent  *T
	dropped    atomic.Uint64
}

// NewChannelEvent creates a new ChannelEvent instance.
// replayLast: if true, the last Notify value is sent to new listeners when they register.
func NewChannelEvent[T any](replayLast bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{
		channels:   make(map[uint64]chan<- T),
		replayLast: replayLast,
	}
}

// Listen registers a channel to receive values when Notify is invoked.
// Returns a deregistration function that can be called to remove the listener.
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.channels[id] = ch
	var replay *T
	if e.replayLast && e.lastEvent != nil {
		v := *e.lastEvent
		replay = &v
	}
	e.mu.Unlock()

	if replay != nil {
		e.send(ch, *replay)
	}

	return func() {
		e.mu.Lock()
		delete(e.channels, id)
		e.mu.Unlock()
	}
}

// Notify sends the provided value to all registered channels.
func (e *ChannelEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.replayLast {
		v := value
		e.lastEvent = &v
	}
	targets := make([]chan<- T, 0, len(e.channels))
	for _, ch := range e.channels {
		targets = append(targets, ch)
	}
	e.mu.Unlock()

	for _, ch := range targets {
		e.send(ch, value)
	}
}

// ListenerCount returns the current number of registered listeners
func (e *ChannelEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.channels)
}

// Dropped returns how many sends were skipped because a listener channel was full.
func (e *ChannelEvent[T]) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *ChannelEvent[T]) send(ch chan<- T, value T) {
	select {
	case ch <- value:
	default:
		e.dropped.Add(1)
	}
}
