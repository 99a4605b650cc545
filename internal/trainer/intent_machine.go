package trainer

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/clock"
	"github.com/lowaak/smart-trainer/runbeat/internal/events"
)

// Request names a transition. Each request carries its own precondition.
type Request int

const (
	RequestInitial Request = iota // Seed value replayed to new subscribers
	RequestStartSetup
	RequestPromoteToActive
	RequestComplete
	RequestEndSession
	RequestResetToIdle
	RequestSetForeground
)

func (r Request) String() string {
	switch r {
	case RequestInitial:
		return "initial"
	case RequestStartSetup:
		return "start-setup"
	case RequestPromoteToActive:
		return "promote-to-active"
	case RequestComplete:
		return "complete"
	case RequestEndSession:
		return "end-session"
	case RequestResetToIdle:
		return "reset-to-idle"
	case RequestSetForeground:
		return "set-foreground"
	default:
		return fmt.Sprintf("request(%d)", int(r))
	}
}

// Transition errors. Every rejection matches ErrInvalidTransition plus one reason.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrSessionActive     = errors.New("a training session is already in progress")
	ErrNoSession         = errors.New("no training session in progress")
	ErrModeConflict      = errors.New("session belongs to the other training mode")
	ErrWrongPhase        = errors.New("session is not in the required phase")
	ErrUnknownMode       = errors.New("unknown training mode")
)

// TransitionError describes a rejected request. The state is unchanged when it is returned.
type TransitionError struct {
	Request Request
	Mode    Mode
	From    Intent
	Reason  error
}

func (e *TransitionError) Error() string {
	if e.Mode.IsTraining() {
		return fmt.Sprintf("%s(%s) from %s: %v", e.Request, e.Mode, e.From, e.Reason)
	}
	return fmt.Sprintf("%s from %s: %v", e.Request, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() []error {
	return []error{ErrInvalidTransition, e.Reason}
}

// IntentChange is published after every accepted transition that changed the Intent.
type IntentChange struct {
	Request   Request
	Old       Intent
	New       Intent
	SessionID string // Empty while Idle
	Seq       uint64 // Strictly increasing per machine
}

// Changed reports whether the transition altered the Intent.
func (c IntentChange) Changed() bool {
	return c.Old != c.New
}

// ModeSwitched reports whether the training mode differs between Old and New.
func (c IntentChange) ModeSwitched() bool {
	return c.Old.Mode() != c.New.Mode()
}

// TrainingFlipped reports whether IsTraining differs between Old and New.
func (c IntentChange) TrainingFlipped() bool {
	return c.Old.IsTraining() != c.New.IsTraining()
}

// IntentStateMachine owns the single authoritative Intent. All transitions are applied
// one at a time under a mutex; observers are notified on a dispatcher lane in the same order.
type IntentStateMachine struct {
	clock  clock.Clock
	logger *zap.SugaredLogger

	mu        sync.Mutex
	current   Intent
	sessionID string
	seq       uint64
	entropy   io.Reader // Guarded by mu; ulid.Monotonic is not safe for concurrent use

	changes *events.CallbackEvent[IntentChange]
}

// NewIntentStateMachine creates a machine in Idle(foreground=true).
func NewIntentStateMachine(clk clock.Clock, dispatcher *events.Dispatcher, logger *zap.SugaredLogger) *IntentStateMachine {
	if clk == nil {
		panic("IntentStateMachine: clock cannot be nil")
	}
	if dispatcher == nil {
		panic("IntentStateMachine: dispatcher cannot be nil")
	}
	if logger == nil {
		panic("IntentStateMachine: logger cannot be nil")
	}

	m := &IntentStateMachine{
		clock:   clk,
		logger:  logger,
		current: IdleIntent(),
		entropy: ulid.Monotonic(rand.Reader, 0),
		changes: events.NewDispatchedCallbackEvent[IntentChange](dispatcher, true),
	}
	// Seed so the first subscriber receives the current state
	m.changes.Notify(IntentChange{Request: RequestInitial, Old: m.current, New: m.current})
	return m
}

// Current returns the Intent at this instant.
func (m *IntentStateMachine) Current() Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SessionID returns the ID of the current training session, or "" while Idle.
func (m *IntentStateMachine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Subscribe registers fn for Intent changes. fn first receives the latest change (or the
// initial state), then every later change in order. Returns an unsubscribe function.
func (m *IntentStateMachine) Subscribe(fn func(IntentChange)) func() {
	return m.changes.Listen(fn)
}

// StartSetup begins a session of the given mode. Requires no session in progress.
func (m *IntentStateMachine) StartSetup(mode Mode) (IntentChange, error) {
	return m.apply(RequestStartSetup, mode, func(cur Intent) (Intent, error) {
		if !mode.IsTraining() {
			return cur, ErrUnknownMode
		}
		if cur.IsTrainingSession() {
			if cur.Mode() != mode {
				return cur, ErrModeConflict
			}
			return cur, ErrSessionActive
		}
		return Intent{Variant: variantFor(mode, PhaseSetup), Foreground: cur.Foreground}, nil
	})
}

// PromoteToActive moves a session from setup to active.
func (m *IntentStateMachine) PromoteToActive(mode Mode) (IntentChange, error) {
	return m.advance(RequestPromoteToActive, mode, PhaseSetup, PhaseActive)
}

// Complete moves an active session to complete.
func (m *IntentStateMachine) Complete(mode Mode) (IntentChange, error) {
	return m.advance(RequestComplete, mode, PhaseActive, PhaseComplete)
}

// EndSession returns to Idle. Requires a session in progress.
func (m *IntentStateMachine) EndSession() (IntentChange, error) {
	return m.apply(RequestEndSession, ModeNone, func(cur Intent) (Intent, error) {
		if !cur.IsTrainingSession() {
			return cur, ErrNoSession
		}
		return Intent{Variant: VariantIdle, Foreground: cur.Foreground}, nil
	})
}

// ResetToIdle forces Idle from any state, for error recovery.
func (m *IntentStateMachine) ResetToIdle() (IntentChange, error) {
	return m.apply(RequestResetToIdle, ModeNone, func(cur Intent) (Intent, error) {
		return Intent{Variant: VariantIdle, Foreground: cur.Foreground}, nil
	})
}

// SetForeground replaces the foreground flag. Mode and phase never change.
func (m *IntentStateMachine) SetForeground(foreground bool) (IntentChange, error) {
	return m.apply(RequestSetForeground, ModeNone, func(cur Intent) (Intent, error) {
		return cur.WithForeground(foreground), nil
	})
}

func (m *IntentStateMachine) advance(req Request, mode Mode, from, to Phase) (IntentChange, error) {
	return m.apply(req, mode, func(cur Intent) (Intent, error) {
		switch {
		case !mode.IsTraining():
			return cur, ErrUnknownMode
		case !cur.IsTrainingSession():
			return cur, ErrNoSession
		case cur.Mode() != mode:
			return cur, ErrModeConflict
		case cur.Phase() != from:
			return cur, ErrWrongPhase
		}
		return Intent{Variant: variantFor(mode, to), Foreground: cur.Foreground}, nil
	})
}

// apply runs one transition under the lock. A transition that leaves the Intent unchanged
// succeeds without publishing.
func (m *IntentStateMachine) apply(req Request, mode Mode, next func(Intent) (Intent, error)) (IntentChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.current
	updated, reason := next(old)
	if reason != nil {
		err := &TransitionError{Request: req, Mode: mode, From: old, Reason: reason}
		m.logger.Warnw("IntentStateMachine: rejected", "request", req.String(), "mode", mode.String(), "from", old.String(), "reason", reason)
		return IntentChange{Request: req, Old: old, New: old, SessionID: m.sessionID, Seq: m.seq}, err
	}

	if updated == old {
		return IntentChange{Request: req, Old: old, New: old, SessionID: m.sessionID, Seq: m.seq}, nil
	}

	switch {
	case req == RequestStartSetup:
		m.sessionID = ulid.MustNew(ulid.Timestamp(m.clock.Now()), m.entropy).String()
	case !updated.IsTrainingSession():
		m.sessionID = ""
	}
	m.current = updated
	m.seq++

	change := IntentChange{Request: req, Old: old, New: updated, SessionID: m.sessionID, Seq: m.seq}
	// Queued while holding mu so observers see changes in the order they were applied
	m.changes.Notify(change)

	m.logger.Infow("IntentStateMachine: transition",
		"request", req.String(),
		"from", old.String(),
		"to", updated.String(),
		"session", m.sessionID,
		"seq", m.seq,
	)
	return change, nil
}
