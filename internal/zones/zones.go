// Package zones maps heart-rate samples onto discrete training zones.
//
// Everything here is pure: no locks, no logging, no clocks. The calculator never
// fails; inconsistent configurations are clamped to a best-effort answer.
package zones

import (
	"errors"
	"fmt"
)

// Zone is a heart-rate intensity bucket. Valid zones are 0 (below zone 1) through 5.
type Zone int

// None marks an absent zone (no sample yet, or no previous zone).
const None Zone = -1

const (
	// MinZone is returned for samples below the zone 1 lower bound.
	MinZone Zone = 0
	// MaxZone is returned for samples at or above the zone 5 upper bound.
	MaxZone Zone = 5
)

// BoundaryCount is the number of stored boundaries: zone 1 lower through zone 5 upper.
const BoundaryCount = 6

// Boundaries holds zone1Lower, zone2Lower, zone3Lower, zone4Lower, zone5Lower, zone5Upper.
// Zone N covers [Boundaries[N-1], Boundaries[N]).
type Boundaries [BoundaryCount]int

// ReservePercentages is the fixed heart-rate-reserve table used for auto zones.
// Each boundary is restingHR + reserve*pct/100, rounded half up.
var ReservePercentages = [BoundaryCount]int{35, 45, 55, 65, 80, 100}

// Default configuration values
const (
	DefaultRestingHR = 60
	DefaultMaxHR     = 190
)

// ErrBoundariesNotIncreasing is reported by Validate for manual boundaries that are not
// strictly increasing.
var ErrBoundariesNotIncreasing = errors.New("zone boundaries are not strictly increasing")

// Config is the user's zone configuration.
type Config struct {
	RestingHR    int
	MaxHR        int
	UseAutoZones bool
	// Manual boundaries. Kept even when UseAutoZones is set so a UI can round-trip them.
	Manual Boundaries
}

// DefaultConfig returns auto zones for the default resting and max heart rate.
func DefaultConfig() Config {
	cfg := Config{
		RestingHR:    DefaultRestingHR,
		MaxHR:        DefaultMaxHR,
		UseAutoZones: true,
	}
	cfg.Manual = AutoBoundaries(cfg.RestingHR, cfg.MaxHR)
	return cfg
}

// AutoBoundaries derives the six boundaries from resting and max heart rate.
func AutoBoundaries(restingHR, maxHR int) Boundaries {
	reserve := maxHR - restingHR
	if reserve < 0 {
		reserve = 0
	}
	var b Boundaries
	for i, pct := range ReservePercentages {
		b[i] = restingHR + (reserve*pct+50)/100
	}
	return b
}

// Effective returns the boundaries actually used for calculation, normalised so they never
// decrease.
func (c Config) Effective() Boundaries {
	b := c.Manual
	if c.UseAutoZones {
		b = AutoBoundaries(c.RestingHR, c.MaxHR)
	}
	for i := 1; i < BoundaryCount; i++ {
		if b[i] < b[i-1] {
			b[i] = b[i-1]
		}
	}
	return b
}

// Validate reports configuration inconsistencies. Calculation does not depend on it.
func (c Config) Validate() error {
	if c.MaxHR <= c.RestingHR {
		return fmt.Errorf("max heart rate %d must exceed resting heart rate %d", c.MaxHR, c.RestingHR)
	}
	if c.UseAutoZones {
		return nil
	}
	for i := 1; i < BoundaryCount; i++ {
		if c.Manual[i] <= c.Manual[i-1] {
			return fmt.Errorf("%w: boundary %d (%d) <= boundary %d (%d)",
				ErrBoundariesNotIncreasing, i, c.Manual[i], i-1, c.Manual[i-1])
		}
	}
	return nil
}

// Calculate returns the zone for bpm under cfg.
func Calculate(bpm int, cfg Config) Zone {
	return Lookup(bpm, cfg.Effective())
}

// Lookup returns the zone for bpm against already-normalised boundaries.
func Lookup(bpm int, b Boundaries) Zone {
	if bpm >= b[BoundaryCount-1] {
		return MaxZone
	}
	if bpm < b[0] {
		return MinZone
	}
	zone := MinZone
	for n := 1; n < BoundaryCount; n++ {
		if bpm >= b[n-1] {
			zone = Zone(n)
		}
	}
	return zone
}

// Valid reports whether z is a real zone value.
func (z Zone) Valid() bool {
	return z >= MinZone && z <= MaxZone
}

func (z Zone) String() string {
	if !z.Valid() {
		return "none"
	}
	return fmt.Sprintf("zone %d", int(z))
}
