// Package app assembles a runnable training session from settings.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/announce"
	"github.com/lowaak/smart-trainer/runbeat/internal/clock"
	"github.com/lowaak/smart-trainer/runbeat/internal/config"
	"github.com/lowaak/smart-trainer/runbeat/internal/events"
	"github.com/lowaak/smart-trainer/runbeat/internal/sensor"
	"github.com/lowaak/smart-trainer/runbeat/internal/store"
	"github.com/lowaak/smart-trainer/runbeat/internal/trainer"
)

// ErrNoSampleSource is returned when no heart rate source is configured.
var ErrNoSampleSource = errors.New("no heart rate source: enable the simulator")

// Options describes one run.
type Options struct {
	Settings *config.Settings
	Mode     trainer.Mode
	// Duration ends the session after the given time. Zero runs until the context is done.
	Duration time.Duration
	// Fs holds the preferences file. Defaults to the OS filesystem.
	Fs afero.Fs
	// Clock defaults to the real clock.
	Clock clock.Clock
	// Announcer receives announcements in addition to the configured sinks.
	Announcer announce.Announcer
}

// Session owns every collaborator of a run.
type Session struct {
	opts   Options
	logger *zap.SugaredLogger

	dispatcher    *events.Dispatcher
	intent        *trainer.IntentStateMachine
	processor     *trainer.HeartRateProcessor
	announcements *trainer.AnnouncementCoordinator
	coordinator   *trainer.SessionCoordinator
	feed          *sensor.Feed
	simulator     *sensor.Simulator
	mqtt          *announce.MQTTAnnouncer
	unsubscribe   func()
	closeOnce     sync.Once
}

// NewSession wires a session. Nothing runs until Run is called.
func NewSession(opts Options, logger *zap.SugaredLogger) (*Session, error) {
	if logger == nil {
		panic("Session: logger cannot be nil")
	}
	if opts.Settings == nil {
		return nil, errors.New("settings are not set")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if !opts.Mode.IsTraining() {
		return nil, fmt.Errorf("%w: %q", trainer.ErrUnknownMode, opts.Mode.String())
	}
	if !opts.Settings.Simulator.Enabled {
		return nil, ErrNoSampleSource
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	settings := opts.Settings

	s := &Session{opts: opts, logger: logger}

	sinks := announce.Multi{announce.NewLogAnnouncer(logger.Named("announce"))}
	if settings.MQTT.Enabled {
		mqtt, err := announce.DialMQTT(settings.MQTTOptions(), logger.Named("mqtt"))
		if err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		s.mqtt = mqtt
		sinks = append(sinks, mqtt)
	}
	if opts.Announcer != nil {
		sinks = append(sinks, opts.Announcer)
	}

	prefs := trainer.NewPreferences(store.NewFileStore(opts.Fs, settings.Preferences, logger.Named("store")), logger)

	s.dispatcher = events.NewDispatcher("intent", logger)
	s.intent = trainer.NewIntentStateMachine(opts.Clock, s.dispatcher, logger)
	s.processor = trainer.NewHeartRateProcessor(prefs.ZoneConfig(settings.ZoneConfig()), prefs, logger)
	s.announcements = trainer.NewAnnouncementCoordinator(opts.Clock, s.processor, s.intent, sinks, prefs, logger)

	s.feed = sensor.NewFeed(opts.Clock, sensor.DefaultFeedBuffer, logger.Named("sensor"))
	s.simulator = sensor.NewSimulator(opts.Clock, settings.Simulator.Interval, settings.SimulatorProfile(),
		s.feed.HandleNotification, logger.Named("simulator"))

	s.coordinator = trainer.NewSessionCoordinator(s.intent, s.processor, s.announcements, s.feed.Samples(), logger)
	s.unsubscribe = s.intent.Subscribe(func(c trainer.IntentChange) {
		logger.Infow("Session: intent", "state", c.New.String(), "session", c.SessionID, "seq", c.Seq)
	})

	return s, nil
}

// Coordinator exposes the session coordinator, e.g. for lifecycle signals.
func (s *Session) Coordinator() *trainer.SessionCoordinator {
	return s.coordinator
}

// ApplySettings re-applies the zone settings to the running processor.
func (s *Session) ApplySettings(settings *config.Settings) {
	if settings == nil {
		return
	}
	if s.coordinator.UpdateZoneConfig(settings.ZoneConfig()) {
		s.logger.Infow("Session: zone settings applied", "boundaries", s.processor.Boundaries())
	}
}

// Run starts a session in the configured mode, trains until ctx is done or the duration
// elapses, then completes and ends the session. The session is closed on return.
func (s *Session) Run(ctx context.Context) (trainer.SessionStats, error) {
	defer s.Close()

	mode := s.opts.Mode
	if _, err := s.coordinator.StartSetup(mode); err != nil {
		return s.coordinator.Stats(), fmt.Errorf("start setup: %w", err)
	}
	if _, err := s.coordinator.PromoteToActive(mode); err != nil {
		_, _ = s.coordinator.ResetToIdle()
		return s.coordinator.Stats(), fmt.Errorf("promote: %w", err)
	}
	s.simulator.Start()

	if s.opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		timer := s.opts.Clock.AfterFunc(s.opts.Duration, cancel)
		defer timer.Stop()
	}
	<-ctx.Done()

	s.simulator.Stop()
	if _, err := s.coordinator.Complete(mode); err != nil {
		s.logger.Warnw("Session: complete failed", "error", err)
	}
	if _, err := s.coordinator.EndSession(); err != nil {
		s.logger.Warnw("Session: end failed", "error", err)
	}

	stats := s.coordinator.Stats()
	s.logger.Infow("Session: finished",
		"samples", stats.Samples,
		"zone_changes", stats.ZoneChanges,
		"dropped", s.feed.Dropped(),
		"invalid", s.feed.Invalid())
	return stats, nil
}

// Close releases every collaborator. Safe to call multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.simulator.Stop()
		s.feed.Close()
		s.coordinator.Shutdown()
		s.unsubscribe()
		s.dispatcher.Close()
		if s.mqtt != nil {
			_ = s.mqtt.Close()
		}
	})
}
