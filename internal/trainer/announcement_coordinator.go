package trainer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/announce"
	"github.com/lowaak/smart-trainer/runbeat/internal/clock"
	"github.com/lowaak/smart-trainer/runbeat/internal/zones"
)

// ZoneReader supplies the current zone for deferred re-checks.
type ZoneReader interface {
	CurrentZone() zones.Zone
}

// IntentReader supplies the current Intent and session.
type IntentReader interface {
	Current() Intent
	SessionID() string
}

// announcementState is the per-mode cooldown state. Zero value is not usable; see reset.
type announcementState struct {
	lastZone   zones.Zone
	lastAt     time.Time
	announced  bool
	timer      clock.Timer
	generation uint64 // Bumped on every arm and reset; a timer only acts if it still matches
}

func (s *announcementState) reset() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
	s.lastZone = zones.None
	s.lastAt = time.Time{}
	s.announced = false
}

// AnnouncementCoordinator decides when a zone change is spoken. Per mode it allows at
// most one announcement per CooldownWindow, never repeats the last announced zone, and
// re-checks the current zone when the window expires so a change made during the
// cooldown is still announced.
type AnnouncementCoordinator struct {
	clock     clock.Clock
	zones     ZoneReader
	intent    IntentReader
	announcer announce.Announcer
	prefs     *Preferences
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	enabled [modeCount]bool
	state   [modeCount]announcementState
}

// NewAnnouncementCoordinator creates a coordinator with the enabled flags loaded from prefs.
func NewAnnouncementCoordinator(
	clk clock.Clock,
	zoneReader ZoneReader,
	intent IntentReader,
	announcer announce.Announcer,
	prefs *Preferences,
	logger *zap.SugaredLogger,
) *AnnouncementCoordinator {
	if clk == nil {
		panic("AnnouncementCoordinator: clock cannot be nil")
	}
	if zoneReader == nil {
		panic("AnnouncementCoordinator: zone reader cannot be nil")
	}
	if intent == nil {
		panic("AnnouncementCoordinator: intent reader cannot be nil")
	}
	if announcer == nil {
		panic("AnnouncementCoordinator: announcer cannot be nil")
	}
	if prefs == nil {
		panic("AnnouncementCoordinator: prefs cannot be nil")
	}
	if logger == nil {
		panic("AnnouncementCoordinator: logger cannot be nil")
	}

	ac := &AnnouncementCoordinator{
		clock:     clk,
		zones:     zoneReader,
		intent:    intent,
		announcer: announcer,
		prefs:     prefs,
		logger:    logger,
	}
	for _, info := range AllModes {
		ac.enabled[info.Mode.index()] = prefs.AnnouncementsEnabled(info.Mode)
		ac.state[info.Mode.index()].reset()
	}
	return ac
}

// SetEnabled updates and persists the flag for mode. It applies from the next decision.
func (ac *AnnouncementCoordinator) SetEnabled(mode Mode, enabled bool) {
	if !mode.IsTraining() {
		ac.logger.Warnw("AnnouncementCoordinator: SetEnabled for non-training mode", "mode", mode.String())
		return
	}
	ac.mu.Lock()
	ac.enabled[mode.index()] = enabled
	ac.mu.Unlock()

	ac.prefs.SetAnnouncementsEnabled(mode, enabled)
}

// Enabled returns the flag for mode.
func (ac *AnnouncementCoordinator) Enabled(mode Mode) bool {
	if !mode.IsTraining() {
		return false
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.enabled[mode.index()]
}

// OnZoneChange is called once per detected zone change for mode.
func (ac *AnnouncementCoordinator) OnZoneChange(newZone, oldZone zones.Zone, mode Mode) {
	if !mode.IsTraining() || !newZone.Valid() {
		return
	}

	ac.mu.Lock()
	pending := ac.decideLocked(mode, newZone, oldZone)
	ac.mu.Unlock()

	if pending != nil {
		ac.announcer.Announce(*pending)
	}
}

// ResetState clears the cooldown state and cancels the deferred re-check for the given
// modes, or for every mode when none are given. Any timer is cancelled before returning.
func (ac *AnnouncementCoordinator) ResetState(modes ...Mode) {
	if len(modes) == 0 {
		for _, info := range AllModes {
			modes = append(modes, info.Mode)
		}
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()
	for _, mode := range modes {
		if !mode.IsTraining() {
			continue
		}
		ac.state[mode.index()].reset()
		ac.logger.Debugw("AnnouncementCoordinator: state reset", "mode", mode.String())
	}
}

// LastAnnounced returns the last announced zone for mode, zones.None if there is none.
func (ac *AnnouncementCoordinator) LastAnnounced(mode Mode) zones.Zone {
	if !mode.IsTraining() {
		return zones.None
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.state[mode.index()].lastZone
}

// RecheckPending reports whether a deferred re-check is armed for mode.
func (ac *AnnouncementCoordinator) RecheckPending(mode Mode) bool {
	if !mode.IsTraining() {
		return false
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.state[mode.index()].timer != nil
}

// decideLocked applies the cooldown policy. Must be called with mu held.
func (ac *AnnouncementCoordinator) decideLocked(mode Mode, newZone, oldZone zones.Zone) *announce.Announcement {
	if !ac.eligibleLocked(mode) {
		return nil
	}

	st := &ac.state[mode.index()]
	now := ac.clock.Now()

	if st.announced && now.Sub(st.lastAt) < CooldownWindow {
		// The armed re-check will look at the zone when the window closes
		ac.logger.Debugw("AnnouncementCoordinator: in cooldown",
			"mode", mode.String(), "zone", newZone.String(), "elapsed", now.Sub(st.lastAt))
		return nil
	}
	if newZone == st.lastZone {
		return nil
	}
	return ac.announceLocked(mode, newZone, oldZone, now)
}

// eligibleLocked reports whether mode may announce right now. Must be called with mu held.
func (ac *AnnouncementCoordinator) eligibleLocked(mode Mode) bool {
	if !ac.enabled[mode.index()] {
		return false
	}
	return ac.intent.Current().IsTrainingIn(mode)
}

// announceLocked records the announcement and arms the re-check. Must be called with mu held.
func (ac *AnnouncementCoordinator) announceLocked(mode Mode, zone, previous zones.Zone, now time.Time) *announce.Announcement {
	st := &ac.state[mode.index()]
	st.lastZone = zone
	st.lastAt = now
	st.announced = true
	ac.armLocked(mode)

	ac.logger.Infow("AnnouncementCoordinator: announcing",
		"mode", mode.String(), "zone", zone.String(), "previous", previous.String())

	return &announce.Announcement{
		Mode:      mode.String(),
		Zone:      zone,
		Previous:  previous,
		At:        now,
		SessionID: ac.intent.SessionID(),
	}
}

// armLocked replaces any armed re-check for mode. Must be called with mu held.
func (ac *AnnouncementCoordinator) armLocked(mode Mode) {
	st := &ac.state[mode.index()]
	if st.timer != nil {
		st.timer.Stop()
	}
	st.generation++
	generation := st.generation
	st.timer = ac.clock.AfterFunc(CooldownWindow, func() {
		ac.recheck(mode, generation)
	})
}

// recheck runs when the cooldown window of an announcement expires.
func (ac *AnnouncementCoordinator) recheck(mode Mode, generation uint64) {
	ac.mu.Lock()
	st := &ac.state[mode.index()]
	if st.generation != generation {
		// Re-armed or reset after this timer was scheduled
		ac.mu.Unlock()
		return
	}
	st.timer = nil

	var pending *announce.Announcement
	current := ac.zones.CurrentZone()
	if current.Valid() && current != st.lastZone && ac.eligibleLocked(mode) {
		pending = ac.announceLocked(mode, current, st.lastZone, ac.clock.Now())
	}
	ac.mu.Unlock()

	if pending != nil {
		ac.announcer.Announce(*pending)
	}
}
