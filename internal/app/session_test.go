package app

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/lowaak/smart-trainer/runbeat/internal/announce"
	"github.com/lowaak/smart-trainer/runbeat/internal/clock"
	"github.com/lowaak/smart-trainer/runbeat/internal/config"
	"github.com/lowaak/smart-trainer/runbeat/internal/trainer"
	"github.com/lowaak/smart-trainer/runbeat/internal/zones"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSettings() *config.Settings {
	s := config.Default()
	s.Preferences = "/prefs/preferences.json"
	s.Simulator.Interval = 5 * time.Millisecond
	// zone 0, then zone 3
	s.Simulator.Profile = "100,140"
	return &s
}

func TestSession_RunAnnouncesFirstZoneAndEnds(t *testing.T) {
	recorder := announce.NewRecorder(0)
	session, err := NewSession(Options{
		Settings:  testSettings(),
		Mode:      trainer.ModeFree,
		Duration:  200 * time.Millisecond,
		Fs:        afero.NewMemMapFs(),
		Announcer: recorder,
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	stats, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Positive(t, stats.Samples)
	assert.Positive(t, stats.ZoneChanges)

	// Zone 3 follows inside the cooldown and the session ends before it expires
	got := recorder.Announcements()
	require.Len(t, got, 1)
	assert.Equal(t, "free", got[0].Mode)
	assert.Equal(t, zones.Zone(0), got[0].Zone)
	assert.Equal(t, zones.None, got[0].Previous)
	assert.NotEmpty(t, got[0].SessionID)
}

func TestSession_RunStopsOnContextCancel(t *testing.T) {
	manual := clock.NewManual(time.Date(2026, 5, 3, 6, 30, 0, 0, time.UTC))
	session, err := NewSession(Options{
		Settings: testSettings(),
		Mode:     trainer.ModeInterval,
		Fs:       afero.NewMemMapFs(),
		Clock:    manual,
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := session.Run(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, 0, manual.PendingTimers(), "simulator and re-check timers are released")

	session.Close()
}

func TestSession_ApplySettingsPersistsZones(t *testing.T) {
	fs := afero.NewMemMapFs()
	settings := testSettings()
	session, err := NewSession(Options{
		Settings: settings,
		Mode:     trainer.ModeFree,
		Fs:       fs,
		Clock:    clock.NewManual(time.Date(2026, 5, 3, 6, 30, 0, 0, time.UTC)),
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer session.Close()

	updated := *settings
	updated.Zones.MaxHR = 200
	session.ApplySettings(&updated)
	session.ApplySettings(nil)

	assert.Equal(t, zones.AutoBoundaries(zones.DefaultRestingHR, 200), session.processor.Boundaries())
	exists, err := afero.Exists(fs, settings.Preferences)
	require.NoError(t, err)
	assert.True(t, exists)

	// A second session picks the saved zones over the settings seed
	second, err := NewSession(Options{
		Settings: settings,
		Mode:     trainer.ModeFree,
		Fs:       fs,
		Clock:    clock.NewManual(time.Date(2026, 5, 3, 6, 30, 0, 0, time.UTC)),
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, 200, second.processor.Config().MaxHR)
}

func TestNewSession_Errors(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	_, err := NewSession(Options{Mode: trainer.ModeFree}, logger)
	assert.Error(t, err)

	_, err = NewSession(Options{Settings: testSettings(), Mode: trainer.ModeNone}, logger)
	assert.ErrorIs(t, err, trainer.ErrUnknownMode)

	noSim := testSettings()
	noSim.Simulator.Enabled = false
	_, err = NewSession(Options{Settings: noSim, Mode: trainer.ModeFree}, logger)
	assert.ErrorIs(t, err, ErrNoSampleSource)

	invalid := testSettings()
	invalid.MQTT.QoS = 9
	_, err = NewSession(Options{Settings: invalid, Mode: trainer.ModeFree}, logger)
	assert.ErrorContains(t, err, "settings")

	assert.Panics(t, func() { _, _ = NewSession(Options{Settings: testSettings(), Mode: trainer.ModeFree}, nil) })
}
