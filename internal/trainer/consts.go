package trainer

import "time"

// CooldownWindow is the minimum spacing between two announcements for the same mode.
const CooldownWindow = 5 * time.Second

// Mode is a training discipline. The two training modes are mutually exclusive.
type Mode int

const (
	ModeNone     Mode = iota // Not in a training session
	ModeInterval             // Structured interval training
	ModeFree                 // Free/continuous training
)

// modeCount is the number of training modes, used to size per-mode arrays.
const modeCount = 2

// ModeInfo contains display and persistence information for a training mode
type ModeInfo struct {
	Mode        Mode
	Name        string // Stable identifier used in preferences and payloads
	DisplayName string
}

// AllModes defines the training modes in order
var AllModes = []ModeInfo{
	{Mode: ModeInterval, Name: "interval", DisplayName: "Interval Training"},
	{Mode: ModeFree, Name: "free", DisplayName: "Free Run"},
}

// GetModeInfo returns the info for a given mode
func GetModeInfo(mode Mode) (ModeInfo, bool) {
	for _, info := range AllModes {
		if info.Mode == mode {
			return info, true
		}
	}
	return ModeInfo{}, false
}

// ParseMode returns the mode whose Name matches s
func ParseMode(s string) (Mode, bool) {
	for _, info := range AllModes {
		if info.Name == s {
			return info.Mode, true
		}
	}
	return ModeNone, false
}

func (m Mode) String() string {
	if info, ok := GetModeInfo(m); ok {
		return info.Name
	}
	return "none"
}

// IsTraining reports whether m is one of the training modes.
func (m Mode) IsTraining() bool {
	return m == ModeInterval || m == ModeFree
}

// index maps a training mode to its slot in per-mode arrays. Only valid for training modes.
func (m Mode) index() int {
	return int(m) - 1
}

// Phase is the stage of a training session.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseSetup
	PhaseActive
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseActive:
		return "active"
	case PhaseComplete:
		return "complete"
	default:
		return "none"
	}
}
