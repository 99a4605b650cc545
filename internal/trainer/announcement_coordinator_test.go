package trainer

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/runbeat/internal/clock"
	"github.com/lowaak/smart-trainer/runbeat/internal/zones"
)

func TestAnnouncementCoordinator_FirstChangeAnnouncesImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.activate(ModeInterval)

	env.zoneChange(3, ModeInterval)

	got := env.recorder.Announcements()
	require.Len(t, got, 1)
	assert.Equal(t, "interval", got[0].Mode)
	assert.Equal(t, zones.Zone(3), got[0].Zone)
	assert.Equal(t, zones.None, got[0].Previous)
	assert.Equal(t, testStart, got[0].At)
	assert.Equal(t, env.intent.SessionID(), got[0].SessionID)
	assert.True(t, env.announcements.RecheckPending(ModeInterval))
}

func TestAnnouncementCoordinator_CooldownWithDeferredRecheck(t *testing.T) {
	env := newTestEnv(t)
	env.activate(ModeInterval)

	// t=0 announce zone 3
	env.zoneChange(3, ModeInterval)
	require.Equal(t, []zones.Zone{3}, env.announcedZones())

	// t=1 zone 3 again: not a change, nothing to decide
	env.clock.Advance(1 * time.Second)
	update := env.zoneChange(3, ModeInterval)
	assert.False(t, update.Changed)

	// t=2 zone 4 inside the cooldown window
	env.clock.Advance(1 * time.Second)
	env.zoneChange(4, ModeInterval)
	assert.Equal(t, []zones.Zone{3}, env.announcedZones())

	// t=5 the re-check sees zone 4
	env.clock.Advance(3 * time.Second)
	assert.Equal(t, []zones.Zone{3, 4}, env.announcedZones())
	last := env.recorder.Announcements()[1]
	assert.Equal(t, testStart.Add(CooldownWindow), last.At)
	assert.Equal(t, zones.Zone(3), last.Previous)

	// t=10 the re-armed check finds nothing new and does not re-arm
	env.clock.Advance(5 * time.Second)
	assert.Equal(t, []zones.Zone{3, 4}, env.announcedZones())
	assert.False(t, env.announcements.RecheckPending(ModeInterval))
	assert.Equal(t, 0, env.clock.PendingTimers())
}

func TestAnnouncementCoordinator_RecheckReadsCurrentZone(t *testing.T) {
	env := newTestEnv(t)
	env.activate(ModeFree)

	env.zoneChange(2, ModeFree)
	env.clock.Advance(time.Second)
	env.zoneChange(3, ModeFree)
	env.clock.Advance(time.Second)
	env.zoneChange(4, ModeFree)

	env.clock.Advance(3 * time.Second)
	assert.Equal(t, []zones.Zone{2, 4}, env.announcedZones(), "zone 3 was never sustained to expiry")
}

func TestAnnouncementCoordinator_RecheckNoopWhenBackToLastZone(t *testing.T) {
	env := newTestEnv(t)
	env.activate(ModeFree)

	env.zoneChange(3, ModeFree)
	env.clock.Advance(time.Second)
	env.zoneChange(4, ModeFree)
	env.clock.Advance(time.Second)
	env.zoneChange(3, ModeFree)

	env.clock.Advance(3 * time.Second)
	assert.Equal(t, []zones.Zone{3}, env.announcedZones())
	assert.False(t, env.announcements.RecheckPending(ModeFree))
}

func TestAnnouncementCoordinator_AfterCooldownAnnouncesImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.activate(ModeInterval)

	env.zoneChange(3, ModeInterval)
	env.clock.Advance(6 * time.Second)
	env.zoneChange(4, ModeInterval)

	assert.Equal(t, []zones.Zone{3, 4}, env.announcedZones())
	assert.Equal(t, testStart.Add(6*time.Second), env.recorder.Announcements()[1].At)
}

func TestAnnouncementCoordinator_SameZoneAfterCooldownNotRepeated(t *testing.T) {
	env := newTestEnv(t)
	env.activate(ModeInterval)

	env.announcements.OnZoneChange(3, zones.None, ModeInterval)
	env.clock.Advance(20 * time.Second)
	env.announcements.OnZoneChange(3, 2, ModeInterval)

	assert.Equal(t, []zones.Zone{3}, env.announcedZones())
}

func TestAnnouncementCoordinator_Disabled(t *testing.T) {
	env := newTestEnv(t)
	env.activate(ModeInterval)

	assert.True(t, env.announcements.Enabled(ModeInterval))
	env.announcements.SetEnabled(ModeInterval, false)
	assert.False(t, env.announcements.Enabled(ModeInterval))
	assert.True(t, env.announcements.Enabled(ModeFree))

	env.zoneChange(3, ModeInterval)
	assert.Empty(t, env.announcedZones())

	env.announcements.SetEnabled(ModeInterval, true)
	env.zoneChange(4, ModeInterval)
	assert.Equal(t, []zones.Zone{4}, env.announcedZones())
}

func TestAnnouncementCoordinator_EnabledFlagPersists(t *testing.T) {
	env := newTestEnv(t)
	env.announcements.SetEnabled(ModeFree, false)

	prefs := env.reloadPrefs()
	assert.False(t, prefs.AnnouncementsEnabled(ModeFree))
	assert.True(t, prefs.AnnouncementsEnabled(ModeInterval))

	reloaded := NewAnnouncementCoordinator(env.clock, env.processor, env.intent, env.recorder, prefs, env.logger)
	assert.False(t, reloaded.Enabled(ModeFree))
}

func TestAnnouncementCoordinator_RecheckHonoursDisableAtFiringTime(t *testing.T) {
	env := newTestEnv(t)
	env.activate(ModeInterval)

	env.zoneChange(3, ModeInterval)
	env.clock.Advance(time.Second)
	env.zoneChange(4, ModeInterval)
	env.announcements.SetEnabled(ModeInterval, false)

	env.clock.Advance(4 * time.Second)
	assert.Equal(t, []zones.Zone{3}, env.announcedZones())
}

func TestAnnouncementCoordinator_OnlyWhileTrainingInMode(t *testing.T) {
	env := newTestEnv(t)

	env.announcements.OnZoneChange(3, zones.None, ModeInterval)
	assert.Empty(t, env.announcedZones(), "idle")

	_, err := env.intent.StartSetup(ModeInterval)
	require.NoError(t, err)
	env.announcements.OnZoneChange(3, zones.None, ModeInterval)
	assert.Empty(t, env.announcedZones(), "setup")

	_, err = env.intent.PromoteToActive(ModeInterval)
	require.NoError(t, err)
	env.announcements.OnZoneChange(3, zones.None, ModeFree)
	assert.Empty(t, env.announcedZones(), "other mode")

	env.announcements.OnZoneChange(zones.None, 3, ModeInterval)
	env.announcements.OnZoneChange(3, zones.None, ModeNone)
	assert.Empty(t, env.announcedZones(), "invalid input")

	env.announcements.OnZoneChange(3, zones.None, ModeInterval)
	assert.Equal(t, []zones.Zone{3}, env.announcedZones())
}

func TestAnnouncementCoordinator_ResetState(t *testing.T) {
	env := newTestEnv(t)
	env.activate(ModeFree)

	env.zoneChange(3, ModeFree)
	require.True(t, env.announcements.RecheckPending(ModeFree))

	env.announcements.ResetState(ModeFree)
	assert.False(t, env.announcements.RecheckPending(ModeFree))
	assert.Equal(t, zones.None, env.announcements.LastAnnounced(ModeFree))
	assert.Equal(t, 0, env.clock.PendingTimers(), "timer cancelled before ResetState returns")

	// Still inside what would have been the cooldown window
	env.clock.Advance(time.Second)
	env.announcements.OnZoneChange(3, zones.None, ModeFree)
	assert.Equal(t, []zones.Zone{3, 3}, env.announcedZones(), "first-announcement semantics restored")
}

func TestAnnouncementCoordinator_ResetStateAllModes(t *testing.T) {
	env := newTestEnv(t)
	env.activate(ModeInterval)
	env.zoneChange(2, ModeInterval)

	env.announcements.ResetState()
	assert.Equal(t, zones.None, env.announcements.LastAnnounced(ModeInterval))
	assert.Equal(t, zones.None, env.announcements.LastAnnounced(ModeFree))
	assert.Equal(t, 0, env.clock.PendingTimers())
}

func TestAnnouncementCoordinator_IdempotentResetProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		env := newTestEnv(t)
		env.activate(ModeInterval)

		steps := rng.Intn(10)
		for i := 0; i < steps; i++ {
			env.clock.Advance(time.Duration(rng.Intn(3000)) * time.Millisecond)
			env.zoneChange(zones.Zone(rng.Intn(6)), ModeInterval)
		}
		before := env.recorder.Count()

		z := zones.Zone(rng.Intn(6))
		env.announcements.ResetState(ModeInterval)
		env.announcements.OnZoneChange(z, zones.None, ModeInterval)

		require.Equal(t, before+1, env.recorder.Count(), "round %d", round)
		assert.Equal(t, z, env.announcedZones()[before])
	}
}

// stuckTimer models a timer that already fired: Stop cannot cancel it.
type stuckTimer struct{}

func (stuckTimer) Stop() bool { return false }

type stuckClock struct {
	*clock.Manual
}

func (c stuckClock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	c.Manual.AfterFunc(d, fn)
	return stuckTimer{}
}

func TestAnnouncementCoordinator_StaleTimerIsIgnored(t *testing.T) {
	manual := clock.NewManual(testStart)
	env := newTestEnvWithClock(t, manual, stuckClock{manual})
	env.activate(ModeInterval)

	env.zoneChange(3, ModeInterval)
	env.clock.Advance(time.Second)
	env.zoneChange(4, ModeInterval)

	// The reset cannot stop the timer, so it still fires at t=5
	env.announcements.ResetState(ModeInterval)
	env.clock.Advance(10 * time.Second)
	assert.Equal(t, []zones.Zone{3}, env.announcedZones())

	// A fresh arming still fires exactly once
	env.announcements.OnZoneChange(4, zones.None, ModeInterval)
	env.clock.Advance(time.Second)
	env.zoneChange(5, ModeInterval)
	env.clock.Advance(10 * time.Second)
	assert.Equal(t, []zones.Zone{3, 4, 5}, env.announcedZones())
}

func TestAnnouncementCoordinator_ModesAreIndependent(t *testing.T) {
	env := newTestEnv(t)

	env.activate(ModeInterval)
	env.zoneChange(3, ModeInterval)
	_, err := env.intent.EndSession()
	require.NoError(t, err)

	env.activate(ModeFree)
	env.processor.Reset()
	env.zoneChange(3, ModeFree)

	assert.Equal(t, []zones.Zone{3, 3}, env.announcedZones(), "free mode has no cooldown from interval")
	assert.Equal(t, zones.Zone(3), env.announcements.LastAnnounced(ModeInterval))
	assert.Equal(t, zones.Zone(3), env.announcements.LastAnnounced(ModeFree))
}

// TestAnnouncementCoordinator_CooldownInvariant drives random zone changes and checks spacing,
// no repeats, and that the final sustained zone is announced.
func TestAnnouncementCoordinator_CooldownInvariant(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		env := newTestEnv(t)
		env.activate(ModeFree)
		rng := rand.New(rand.NewSource(seed))

		for i := 0; i < 200; i++ {
			env.clock.Advance(time.Duration(rng.Intn(2500)) * time.Millisecond)
			env.zoneChange(zones.Zone(rng.Intn(6)), ModeFree)
		}
		final := env.processor.CurrentZone()
		env.clock.Advance(2 * CooldownWindow)

		got := env.recorder.Announcements()
		require.NotEmpty(t, got)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i].At.Sub(got[i-1].At), CooldownWindow, "seed %d #%d", seed, i)
			assert.NotEqual(t, got[i-1].Zone, got[i].Zone, "seed %d #%d repeats", seed, i)
		}
		assert.Equal(t, final, got[len(got)-1].Zone, "seed %d: sustained zone announced", seed)
	}
}

func TestNewAnnouncementCoordinator_NilDeps(t *testing.T) {
	env := newTestEnv(t)
	c, z, i, a, p, l := env.clock, env.processor, env.intent, env.recorder, env.prefs, env.logger

	assert.Panics(t, func() { NewAnnouncementCoordinator(nil, z, i, a, p, l) })
	assert.Panics(t, func() { NewAnnouncementCoordinator(c, nil, i, a, p, l) })
	assert.Panics(t, func() { NewAnnouncementCoordinator(c, z, nil, a, p, l) })
	assert.Panics(t, func() { NewAnnouncementCoordinator(c, z, i, nil, p, l) })
	assert.Panics(t, func() { NewAnnouncementCoordinator(c, z, i, a, nil, l) })
	assert.Panics(t, func() { NewAnnouncementCoordinator(c, z, i, a, p, nil) })
}
