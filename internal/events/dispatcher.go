package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/go_func_utils"
)

// Dispatcher is a sequential task lane. Tasks run one at a time on a single goroutine,
// in the order they were submitted. Submit never blocks the caller.
type Dispatcher struct {
	name   string
	logger *zap.SugaredLogger

	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewDispatcher starts a dispatcher goroutine.
func NewDispatcher(name string, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		panic("Dispatcher: logger cannot be nil")
	}
	d := &Dispatcher{
		name:    name,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go_func_utils.SafeGo(logger, "dispatcher:"+name, d.run)
	return d
}

// Submit queues fn. It reports false if the dispatcher has been closed.
func (d *Dispatcher) Submit(fn func()) bool {
	if fn == nil {
		panic("task cannot be nil")
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
		// Already signalled
	}
	return true
}

// Flush blocks until every task submitted before the call has run.
func (d *Dispatcher) Flush() {
	barrier := make(chan struct{})
	if !d.Submit(func() { close(barrier) }) {
		return
	}
	select {
	case <-barrier:
	case <-d.stopped:
	}
}

// Close stops accepting tasks, runs what is queued, and waits for the lane to exit.
// Safe to call multiple times.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
		<-d.stopped
	})
}

func (d *Dispatcher) run() {
	defer close(d.stopped)

	for {
		d.drain()

		select {
		case <-d.wake:
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		task := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		go_func_utils.Recover(d.logger, d.name, task)
	}
}
