package trainer

import "fmt"

// Variant is one of the seven things the app can be doing.
type Variant int

const (
	VariantIdle Variant = iota
	VariantIntervalSetup
	VariantIntervalActive
	VariantIntervalComplete
	VariantFreeSetup
	VariantFreeActive
	VariantFreeComplete
)

// AllVariants lists every variant in declaration order
var AllVariants = []Variant{
	VariantIdle,
	VariantIntervalSetup,
	VariantIntervalActive,
	VariantIntervalComplete,
	VariantFreeSetup,
	VariantFreeActive,
	VariantFreeComplete,
}

// variantFor returns the variant for a mode and phase. ModeNone or PhaseNone yield Idle.
func variantFor(mode Mode, phase Phase) Variant {
	if !mode.IsTraining() || phase == PhaseNone {
		return VariantIdle
	}
	base := VariantIntervalSetup
	if mode == ModeFree {
		base = VariantFreeSetup
	}
	return base + Variant(phase-PhaseSetup)
}

// Mode returns the training mode of the variant.
func (v Variant) Mode() Mode {
	switch v {
	case VariantIntervalSetup, VariantIntervalActive, VariantIntervalComplete:
		return ModeInterval
	case VariantFreeSetup, VariantFreeActive, VariantFreeComplete:
		return ModeFree
	default:
		return ModeNone
	}
}

// Phase returns the session phase of the variant.
func (v Variant) Phase() Phase {
	switch v {
	case VariantIntervalSetup, VariantFreeSetup:
		return PhaseSetup
	case VariantIntervalActive, VariantFreeActive:
		return PhaseActive
	case VariantIntervalComplete, VariantFreeComplete:
		return PhaseComplete
	default:
		return PhaseNone
	}
}

func (v Variant) String() string {
	if v == VariantIdle {
		return "idle"
	}
	return v.Mode().String() + "-" + v.Phase().String()
}

// Intent is the authoritative description of what the app is doing.
// The zero value is Idle in the background; use IdleIntent for the initial state.
type Intent struct {
	Variant    Variant
	Foreground bool
}

// IdleIntent is the state the app starts in.
func IdleIntent() Intent {
	return Intent{Variant: VariantIdle, Foreground: true}
}

func (i Intent) Mode() Mode   { return i.Variant.Mode() }
func (i Intent) Phase() Phase { return i.Variant.Phase() }

// IsTrainingSession is true for every variant except Idle.
func (i Intent) IsTrainingSession() bool {
	return i.Variant != VariantIdle
}

// IsTraining is true only while a session is active.
func (i Intent) IsTraining() bool {
	return i.Phase() == PhaseActive
}

// IsTrainingIn reports whether a session of the given mode is active.
func (i Intent) IsTrainingIn(mode Mode) bool {
	return i.IsTraining() && i.Mode() == mode
}

// WithForeground returns the same variant with the foreground flag replaced.
func (i Intent) WithForeground(foreground bool) Intent {
	i.Foreground = foreground
	return i
}

func (i Intent) String() string {
	fg := "background"
	if i.Foreground {
		fg = "foreground"
	}
	return fmt.Sprintf("%s(%s)", i.Variant, fg)
}
