package trainer

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/runbeat/internal/sensor"
	"github.com/lowaak/smart-trainer/runbeat/internal/zones"
)

// SessionStats counts what the coordinator has handled.
type SessionStats struct {
	Samples     uint64
	ZoneChanges uint64
	Rejected    uint64
}

// SessionCoordinator is the composition root of a training session. It feeds sensor
// samples to the processor, forwards zone changes to announcements while a session is
// active, and applies the observer-side resets that follow each accepted transition.
//
// Transitions and sample handling share one lane, so a sample never observes an Intent
// whose resets have not been applied yet.
type SessionCoordinator struct {
	intent        *IntentStateMachine
	processor     *HeartRateProcessor
	announcements *AnnouncementCoordinator
	logger        *zap.SugaredLogger

	lane sync.Mutex

	samples     uint64
	zoneChanges uint64
	rejected    atomic.Uint64

	// Goroutine management
	configChanges chan ConfigChange
	unlisten      func()
	doneChan      chan struct{} // Closed to signal shutdown
	wg            sync.WaitGroup
	shutdownOnce  sync.Once
}

// NewSessionCoordinator wires the collaborators and starts consuming samples.
// A nil samples channel is allowed; HandleSample can still be called directly.
func NewSessionCoordinator(
	intent *IntentStateMachine,
	processor *HeartRateProcessor,
	announcements *AnnouncementCoordinator,
	samples <-chan sensor.Sample,
	logger *zap.SugaredLogger,
) *SessionCoordinator {
	if intent == nil {
		panic("SessionCoordinator: intent cannot be nil")
	}
	if processor == nil {
		panic("SessionCoordinator: processor cannot be nil")
	}
	if announcements == nil {
		panic("SessionCoordinator: announcements cannot be nil")
	}
	if logger == nil {
		panic("SessionCoordinator: logger cannot be nil")
	}

	sc := &SessionCoordinator{
		intent:        intent,
		processor:     processor,
		announcements: announcements,
		logger:        logger,
		configChanges: make(chan ConfigChange, 4),
		doneChan:      make(chan struct{}),
	}
	sc.unlisten = processor.ListenConfigChanges(sc.configChanges)

	sc.wg.Add(1)
	go_func_utils.SafeGo(logger, "session-coordinator", func() { sc.run(samples) })

	return sc
}

// StartSetup begins a session of the given mode.
func (sc *SessionCoordinator) StartSetup(mode Mode) (IntentChange, error) {
	return sc.transition(func() (IntentChange, error) { return sc.intent.StartSetup(mode) })
}

// PromoteToActive starts training in an existing setup.
func (sc *SessionCoordinator) PromoteToActive(mode Mode) (IntentChange, error) {
	return sc.transition(func() (IntentChange, error) { return sc.intent.PromoteToActive(mode) })
}

// Complete finishes training; the session stays open until EndSession.
func (sc *SessionCoordinator) Complete(mode Mode) (IntentChange, error) {
	return sc.transition(func() (IntentChange, error) { return sc.intent.Complete(mode) })
}

// EndSession returns to Idle and clears the session's announcement state.
func (sc *SessionCoordinator) EndSession() (IntentChange, error) {
	return sc.transition(sc.intent.EndSession)
}

// ResetToIdle forces Idle for error recovery.
func (sc *SessionCoordinator) ResetToIdle() (IntentChange, error) {
	return sc.transition(sc.intent.ResetToIdle)
}

// EnteredForeground handles the lifecycle signal.
func (sc *SessionCoordinator) EnteredForeground() {
	_, _ = sc.transition(func() (IntentChange, error) { return sc.intent.SetForeground(true) })
}

// EnteredBackground handles the lifecycle signal.
func (sc *SessionCoordinator) EnteredBackground() {
	_, _ = sc.transition(func() (IntentChange, error) { return sc.intent.SetForeground(false) })
}

// HandleSample processes one sample and, when the zone changed during an active session,
// hands the change to the announcement policy.
func (sc *SessionCoordinator) HandleSample(s sensor.Sample) ZoneUpdate {
	sc.lane.Lock()
	defer sc.lane.Unlock()

	update := sc.processor.ProcessSample(s.BPM)
	sc.samples++
	if !update.Changed {
		return update
	}
	sc.zoneChanges++

	current := sc.intent.Current()
	sc.logger.Debugw("SessionCoordinator: zone changed",
		"bpm", s.BPM, "zone", update.Zone.String(), "previous", update.Previous.String(), "intent", current.String())
	if current.IsTraining() {
		sc.announcements.OnZoneChange(update.Zone, update.Previous, current.Mode())
	}
	return update
}

// UpdateZoneConfig replaces the zone configuration.
func (sc *SessionCoordinator) UpdateZoneConfig(cfg zones.Config) bool {
	return sc.processor.UpdateConfig(cfg)
}

// Stats returns counters since construction.
func (sc *SessionCoordinator) Stats() SessionStats {
	sc.lane.Lock()
	defer sc.lane.Unlock()
	return SessionStats{
		Samples:     sc.samples,
		ZoneChanges: sc.zoneChanges,
		Rejected:    sc.rejected.Load(),
	}
}

// Shutdown stops the sample loop and cancels pending announcement re-checks.
// Safe to call multiple times - only the first call has effect
func (sc *SessionCoordinator) Shutdown() {
	sc.shutdownOnce.Do(func() {
		sc.logger.Infow("SessionCoordinator: shutting down")
		close(sc.doneChan)
		sc.wg.Wait()
		sc.unlisten()
		sc.announcements.ResetState()
		sc.logger.Infow("SessionCoordinator: shutdown complete")
	})
}

// transition applies a request and then, on the same lane, the resets its edges require.
func (sc *SessionCoordinator) transition(request func() (IntentChange, error)) (IntentChange, error) {
	sc.lane.Lock()
	defer sc.lane.Unlock()

	change, err := request()
	if err != nil {
		sc.rejected.Add(1)
		return change, err
	}
	sc.applyEdgesLocked(change)
	return change, nil
}

// applyEdgesLocked must be called with lane held.
func (sc *SessionCoordinator) applyEdgesLocked(change IntentChange) {
	if !change.Changed() {
		return
	}
	oldMode := change.Old.Mode()
	if oldMode.IsTraining() && (change.ModeSwitched() || !change.New.IsTrainingSession()) {
		sc.announcements.ResetState(oldMode)
	}
	if change.TrainingFlipped() {
		sc.processor.Reset()
	}
}

// run is the goroutine that consumes samples until shutdown or the channel closes.
func (sc *SessionCoordinator) run(samples <-chan sensor.Sample) {
	defer sc.wg.Done()

	for {
		select {
		case <-sc.doneChan:
			sc.logger.Debugw("SessionCoordinator: goroutine exiting")
			return

		case s, ok := <-samples:
			if !ok {
				sc.logger.Infow("SessionCoordinator: sample source closed")
				samples = nil
				continue
			}
			sc.HandleSample(s)

		case change := <-sc.configChanges:
			sc.logger.Infow("SessionCoordinator: zone boundaries changed",
				"old", change.OldBoundaries, "new", change.NewBoundaries)
		}
	}
}
