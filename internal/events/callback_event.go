package events

import (
	"sort"
	"sync"
)

// CallbackEvent provides pub/sub behavior with type-safe callbacks.
// T is the type of the argument passed to callback functions.
//
// Without a dispatcher, Notify calls listeners synchronously on the notifying goroutine.
// With a dispatcher, every delivery (including the replay on Listen) is queued on the
// dispatcher lane, so each listener observes values in exactly the order Notify was called.
type CallbackEvent[T any] struct {
	mu         sync.RWMutex
	listeners  map[uint64]func(T)
	nextID     uint64
	replayLast bool
	lastEvent  *T
	dispatcher *Dispatcher
}

// NewCallbackEvent creates a CallbackEvent that delivers synchronously.
// replayLast: if true, the event remembers the last Notify value and hands it to new
// listeners as soon as they register.
func NewCallbackEvent[T any](replayLast bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{
		listeners:  make(map[uint64]func(T)),
		replayLast: replayLast,
	}
}

// NewDispatchedCallbackEvent creates a CallbackEvent whose deliveries run on d.
func NewDispatchedCallbackEvent[T any](d *Dispatcher, replayLast bool) *CallbackEvent[T] {
	if d == nil {
		panic("dispatcher cannot be nil")
	}
	e := NewCallbackEvent[T](replayLast)
	e.dispatcher = d
	return e
}

// Listen registers a callback function to be called when Notify is invoked.
// Returns a deregistration function that can be called to remove the listener.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = callback
	var replay *T
	if e.replayLast && e.lastEvent != nil {
		v := *e.lastEvent
		replay = &v
	}
	if replay != nil && e.dispatcher != nil {
		// Queued under the lock so it cannot overtake a later Notify
		value := *replay
		e.dispatcher.Submit(func() { e.deliver(id, callback, value) })
		replay = nil
	}
	e.mu.Unlock()

	// Outside the lock to avoid deadlock if the callback re-enters
	if replay != nil {
		callback(*replay)
	}

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Notify hands value to every registered listener.
// This operation is thread-safe.
func (e *CallbackEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.replayLast {
		v := value
		e.lastEvent = &v
	}
	snapshot := e.snapshotLocked()
	if e.dispatcher != nil {
		e.dispatcher.Submit(func() {
			for _, l := range snapshot {
				e.deliver(l.id, l.callback, value)
			}
		})
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	for _, l := range snapshot {
		l.callback(value)
	}
}

// ListenerCount returns the current number of registered listeners
func (e *CallbackEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

type registeredListener[T any] struct {
	id       uint64
	callback func(T)
}

// snapshotLocked copies listeners in registration order. Must be called with mu held.
func (e *CallbackEvent[T]) snapshotLocked() []registeredListener[T] {
	out := make([]registeredListener[T], 0, len(e.listeners))
	for id, cb := range e.listeners {
		out = append(out, registeredListener[T]{id: id, callback: cb})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// deliver skips listeners that deregistered after the value was queued.
func (e *CallbackEvent[T]) deliver(id uint64, callback func(T), value T) {
	e.mu.RLock()
	_, still := e.listeners[id]
	e.mu.RUnlock()
	if still {
		callback(value)
	}
}
