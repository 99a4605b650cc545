package trainer

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lowaak/smart-trainer/runbeat/internal/store"
	"github.com/lowaak/smart-trainer/runbeat/internal/zones"
)

func TestPreferences_Defaults(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	prefs := NewPreferences(store.NewFileStore(afero.NewMemMapFs(), "/p.json", logger), logger)

	for _, info := range AllModes {
		assert.True(t, prefs.AnnouncementsEnabled(info.Mode), info.Name)
	}
	assert.Equal(t, zones.DefaultConfig(), prefs.ZoneConfig(zones.DefaultConfig()))
}

func TestPreferences_PartialValuesFallBack(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	s := store.NewFileStore(afero.NewMemMapFs(), "/p.json", logger)
	require.NoError(t, s.Set(map[string]any{
		"zones.max_hr":      176,
		"zones.zone5_upper": 176,
	}))
	prefs := NewPreferences(s, logger)

	cfg := prefs.ZoneConfig(zones.DefaultConfig())
	assert.Equal(t, 176, cfg.MaxHR)
	assert.Equal(t, zones.DefaultRestingHR, cfg.RestingHR)
	assert.True(t, cfg.UseAutoZones)
	assert.Equal(t, 176, cfg.Manual[5])
	assert.Equal(t, zones.DefaultConfig().Manual[0], cfg.Manual[0])
}

func TestPreferences_WriteFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core).Sugar()
	s := store.NewFileStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/p.json", logger)
	prefs := NewPreferences(s, logger)

	prefs.SetAnnouncementsEnabled(ModeInterval, false)
	prefs.SaveZoneConfig(zones.DefaultConfig())

	assert.False(t, prefs.AnnouncementsEnabled(ModeInterval), "value applies even when the write fails")
	assert.Equal(t, 1, logs.FilterMessage("Preferences: save announcements flag failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Preferences: save zone config failed").Len())
}

func TestModeMetadata(t *testing.T) {
	mode, ok := ParseMode("free")
	assert.True(t, ok)
	assert.Equal(t, ModeFree, mode)

	_, ok = ParseMode("tempo")
	assert.False(t, ok)

	assert.Equal(t, "interval", ModeInterval.String())
	assert.Equal(t, "none", ModeNone.String())
	assert.Equal(t, 0, ModeInterval.index())
	assert.Equal(t, 1, ModeFree.index())
	assert.Len(t, AllModes, modeCount)
}
