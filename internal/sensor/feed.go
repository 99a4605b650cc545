package sensor

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/clock"
)

// DefaultFeedBuffer is the sample channel capacity used when none is given.
const DefaultFeedBuffer = 16

// Feed decodes raw notifications and delivers samples on a buffered channel.
// HandleNotification never blocks: when the consumer falls behind, samples are dropped.
type Feed struct {
	clock  clock.Clock
	logger *zap.SugaredLogger

	mu      sync.Mutex
	out     chan Sample
	closed  bool
	dropped atomic.Uint64
	invalid atomic.Uint64
}

// NewFeed creates a Feed. buffer <= 0 selects DefaultFeedBuffer.
func NewFeed(clk clock.Clock, buffer int, logger *zap.SugaredLogger) *Feed {
	if clk == nil {
		panic("Feed: clock cannot be nil")
	}
	if logger == nil {
		panic("Feed: logger cannot be nil")
	}
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &Feed{
		clock:  clk,
		logger: logger,
		out:    make(chan Sample, buffer),
	}
}

// Samples returns the channel samples are delivered on. It is closed by Close.
func (f *Feed) Samples() <-chan Sample {
	return f.out
}

// HandleNotification is the notification callback for the measurement characteristic.
func (f *Feed) HandleNotification(buf []byte) {
	bpm, err := DecodeHeartRateMeasurement(buf)
	if err != nil {
		f.invalid.Add(1)
		f.logger.Warnw("Feed: invalid measurement", "error", err)
		return
	}
	// Straps report 0 while they have no skin contact
	if bpm == 0 {
		return
	}
	f.Push(Sample{BPM: bpm, At: f.clock.Now()})
}

// Push delivers an already decoded sample.
func (f *Feed) Push(s Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.out <- s:
	default:
		n := f.dropped.Add(1)
		f.logger.Warnw("Feed: consumer behind, sample dropped", "bpm", s.BPM, "dropped_total", n)
	}
}

// Dropped returns how many samples were discarded because the channel was full.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Invalid returns how many notifications failed to decode.
func (f *Feed) Invalid() uint64 {
	return f.invalid.Load()
}

// Close closes the sample channel. Safe to call multiple times.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.out)
}
