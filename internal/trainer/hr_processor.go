package trainer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/events"
	"github.com/lowaak/smart-trainer/runbeat/internal/zones"
)

// ZoneUpdate is the result of processing one sample.
type ZoneUpdate struct {
	BPM      int
	Zone     zones.Zone
	Previous zones.Zone // zones.None before the first sample
	Changed  bool
}

// ConfigChange is published when the effective zone boundaries change.
type ConfigChange struct {
	Old           zones.Config
	New           zones.Config
	OldBoundaries zones.Boundaries
	NewBoundaries zones.Boundaries
}

// HeartRateProcessor turns samples into zones and tracks the current zone.
type HeartRateProcessor struct {
	prefs  *Preferences
	logger *zap.SugaredLogger

	// updateMu serialises UpdateConfig so persisted values follow the applied order
	updateMu sync.Mutex

	mu         sync.Mutex
	config     zones.Config
	boundaries zones.Boundaries
	current    zones.Zone

	configChanged *events.ChannelEvent[ConfigChange]
	zoneChanged   *events.ChannelEvent[ZoneUpdate]
}

// NewHeartRateProcessor creates a processor with no current zone.
func NewHeartRateProcessor(config zones.Config, prefs *Preferences, logger *zap.SugaredLogger) *HeartRateProcessor {
	if prefs == nil {
		panic("HeartRateProcessor: prefs cannot be nil")
	}
	if logger == nil {
		panic("HeartRateProcessor: logger cannot be nil")
	}
	if err := config.Validate(); err != nil {
		logger.Warnw("HeartRateProcessor: inconsistent zone config, clamping", "error", err)
	}
	return &HeartRateProcessor{
		prefs:         prefs,
		logger:        logger,
		config:        config,
		boundaries:    config.Effective(),
		current:       zones.None,
		configChanged: events.NewChannelEvent[ConfigChange](false),
		zoneChanged:   events.NewChannelEvent[ZoneUpdate](true),
	}
}

// UpdateConfig replaces the zone configuration and persists it. It reports whether the
// effective boundaries changed; only then is a ConfigChange published.
func (p *HeartRateProcessor) UpdateConfig(cfg zones.Config) bool {
	p.updateMu.Lock()
	defer p.updateMu.Unlock()

	if err := cfg.Validate(); err != nil {
		p.logger.Warnw("HeartRateProcessor: inconsistent zone config, clamping", "error", err)
	}

	p.mu.Lock()
	old := p.config
	oldBoundaries := p.boundaries
	p.config = cfg
	p.boundaries = cfg.Effective()
	newBoundaries := p.boundaries
	p.mu.Unlock()

	if cfg == old {
		return false
	}
	p.prefs.SaveZoneConfig(cfg)

	if newBoundaries == oldBoundaries {
		p.logger.Debugw("HeartRateProcessor: config updated, boundaries unchanged")
		return false
	}
	p.logger.Infow("HeartRateProcessor: zone boundaries changed", "old", oldBoundaries, "new", newBoundaries)
	p.configChanged.Notify(ConfigChange{
		Old:           old,
		New:           cfg,
		OldBoundaries: oldBoundaries,
		NewBoundaries: newBoundaries,
	})
	return true
}

// ProcessSample computes the zone for bpm and records it as the current zone.
// The read-compare-write of the current zone is atomic per processor.
func (p *HeartRateProcessor) ProcessSample(bpm int) ZoneUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()

	zone := zones.Lookup(bpm, p.boundaries)
	update := ZoneUpdate{
		BPM:      bpm,
		Zone:     zone,
		Previous: p.current,
		Changed:  zone != p.current,
	}
	p.current = zone

	if update.Changed {
		// Non-blocking; sent under mu so listeners see zone changes in order
		p.zoneChanged.Notify(update)
	}
	return update
}

// Reset clears the current zone. The configuration is kept.
func (p *HeartRateProcessor) Reset() {
	p.mu.Lock()
	previous := p.current
	p.current = zones.None
	p.mu.Unlock()
	p.logger.Debugw("HeartRateProcessor: reset", "previous", previous.String())
}

// CurrentZone returns the current zone, zones.None before the first sample.
func (p *HeartRateProcessor) CurrentZone() zones.Zone {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Config returns the stored configuration.
func (p *HeartRateProcessor) Config() zones.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// Boundaries returns the effective boundaries in use.
func (p *HeartRateProcessor) Boundaries() zones.Boundaries {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.boundaries
}

// ListenConfigChanges registers ch for ConfigChange notifications. Sends never block.
func (p *HeartRateProcessor) ListenConfigChanges(ch chan<- ConfigChange) func() {
	return p.configChanged.Listen(ch)
}

// ListenZoneChanges registers ch for zone changes. The latest change is replayed on
// registration. Sends never block.
func (p *HeartRateProcessor) ListenZoneChanges(ch chan<- ZoneUpdate) func() {
	return p.zoneChanged.Listen(ch)
}
