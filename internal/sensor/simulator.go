package sensor

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/clock"
)

// Profile is the sequence of BPM values a Simulator cycles through, one per tick.
type Profile []int

// ErrEmptyProfile is returned for a profile with no values.
var ErrEmptyProfile = errors.New("profile has no values")

var builtinProfiles = map[string]Profile{
	"steady":    {128, 130, 131, 130, 129, 130},
	"ramp":      {95, 105, 115, 125, 135, 145, 155, 165, 175, 185, 175, 150, 125, 100},
	"intervals": {110, 140, 165, 172, 175, 150, 125, 118, 145, 168, 176, 178, 148, 120},
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseProfile accepts a built-in profile name or a comma-separated BPM list.
func ParseProfile(s string) (Profile, error) {
	s = strings.TrimSpace(s)
	if p, ok := builtinProfiles[strings.ToLower(s)]; ok {
		return append(Profile(nil), p...), nil
	}
	if s == "" {
		return nil, ErrEmptyProfile
	}
	var p Profile
	for _, part := range strings.Split(s, ",") {
		bpm, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("profile value %q: %w", part, err)
		}
		if bpm <= 0 {
			return nil, fmt.Errorf("profile value %d: must be positive", bpm)
		}
		p = append(p, bpm)
	}
	return p, nil
}

// At returns the value for a step, wrapping around at the end.
func (p Profile) At(step int) int {
	return p[step%len(p)]
}

// Simulator emits heart rate measurement notifications on a fixed interval, following
// a profile. It stands in for a real strap.
type Simulator struct {
	clock    clock.Clock
	interval time.Duration
	profile  Profile
	notify   func([]byte)
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	running bool
	step    int
	timer   clock.Timer
}

// NewSimulator creates a stopped Simulator.
func NewSimulator(clk clock.Clock, interval time.Duration, profile Profile, notify func([]byte), logger *zap.SugaredLogger) *Simulator {
	if clk == nil {
		panic("Simulator: clock cannot be nil")
	}
	if notify == nil {
		panic("Simulator: notify cannot be nil")
	}
	if logger == nil {
		panic("Simulator: logger cannot be nil")
	}
	if len(profile) == 0 {
		panic("Simulator: profile cannot be empty")
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Simulator{
		clock:    clk,
		interval: interval,
		profile:  profile,
		notify:   notify,
		logger:   logger,
	}
}

// Start begins emitting. Calling Start on a running simulator does nothing.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.timer = s.clock.AfterFunc(s.interval, s.tick)
	s.logger.Infow("Simulator: started", "interval", s.interval, "profile_len", len(s.profile))
}

// Stop halts emission. A tick already in progress may still deliver its notification.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.logger.Infow("Simulator: stopped", "steps", s.step)
}

// Steps returns how many notifications have been emitted.
func (s *Simulator) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Simulator) tick() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	bpm := s.profile.At(s.step)
	s.step++
	s.timer = s.clock.AfterFunc(s.interval, s.tick)
	s.mu.Unlock()

	// HR format: [flags, hr_value]
	s.notify(EncodeHeartRateMeasurement(bpm))
	s.logger.Debugw("Simulator: sent HR notification", "bpm", bpm)
}
