package trainer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/store"
	"github.com/lowaak/smart-trainer/runbeat/internal/zones"
)

// Preference keys
const (
	keyRestingHR    = "zones.resting_hr"
	keyMaxHR        = "zones.max_hr"
	keyUseAutoZones = "zones.use_auto"
)

var boundaryKeys = [zones.BoundaryCount]string{
	"zones.zone1_lower",
	"zones.zone2_lower",
	"zones.zone3_lower",
	"zones.zone4_lower",
	"zones.zone5_lower",
	"zones.zone5_upper",
}

func announcementsKey(mode Mode) string {
	return fmt.Sprintf("announcements.%s.enabled", mode)
}

// Preferences maps user settings onto a key to scalar store. Write failures are logged
// and otherwise ignored; the in-memory value still takes effect.
type Preferences struct {
	store  store.Store
	logger *zap.SugaredLogger
}

// NewPreferences creates Preferences over s.
func NewPreferences(s store.Store, logger *zap.SugaredLogger) *Preferences {
	if s == nil {
		panic("Preferences: store cannot be nil")
	}
	if logger == nil {
		panic("Preferences: logger cannot be nil")
	}
	return &Preferences{store: s, logger: logger}
}

// AnnouncementsEnabled returns the stored flag for mode, defaulting to true.
func (p *Preferences) AnnouncementsEnabled(mode Mode) bool {
	enabled, ok := p.store.Bool(announcementsKey(mode))
	if !ok {
		return true
	}
	return enabled
}

func (p *Preferences) SetAnnouncementsEnabled(mode Mode, enabled bool) {
	p.logger.Infow("Preferences: announcements", "mode", mode.String(), "enabled", enabled)
	if err := p.store.Set(map[string]any{announcementsKey(mode): enabled}); err != nil {
		p.logger.Warnw("Preferences: save announcements flag failed", "mode", mode.String(), "error", err)
	}
}

// ZoneConfig returns the stored zone configuration. Missing fields come from fallback.
func (p *Preferences) ZoneConfig(fallback zones.Config) zones.Config {
	cfg := fallback
	if v, ok := p.store.Int(keyRestingHR); ok {
		cfg.RestingHR = v
	}
	if v, ok := p.store.Int(keyMaxHR); ok {
		cfg.MaxHR = v
	}
	if v, ok := p.store.Bool(keyUseAutoZones); ok {
		cfg.UseAutoZones = v
	}
	for i, key := range boundaryKeys {
		if v, ok := p.store.Int(key); ok {
			cfg.Manual[i] = v
		}
	}
	return cfg
}

func (p *Preferences) SaveZoneConfig(cfg zones.Config) {
	values := map[string]any{
		keyRestingHR:    cfg.RestingHR,
		keyMaxHR:        cfg.MaxHR,
		keyUseAutoZones: cfg.UseAutoZones,
	}
	for i, key := range boundaryKeys {
		values[key] = cfg.Manual[i]
	}
	if err := p.store.Set(values); err != nil {
		p.logger.Warnw("Preferences: save zone config failed", "error", err)
		return
	}
	p.logger.Infow("Preferences: zone config saved", "resting_hr", cfg.RestingHR, "max_hr", cfg.MaxHR, "auto", cfg.UseAutoZones)
}
