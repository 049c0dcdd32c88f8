package backoff

import "time"

// Strategy selects a Policy implementation by name.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
	StrategyNone        Strategy = "none"
)

// Config holds strategy parameters. Zero-valued fields fall back to the
// package defaults; an unknown or empty Strategy falls back to
// exponential.
type Config struct {
	Strategy      Strategy      `json:"strategy" yaml:"strategy"`
	InitialDelay  time.Duration `json:"initial_delay,omitempty" yaml:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay,omitempty" yaml:"max_delay"`
	Multiplier    float64       `json:"multiplier,omitempty" yaml:"multiplier"`
	Randomization float64       `json:"randomization,omitempty" yaml:"randomization"`
	Increment     time.Duration `json:"increment,omitempty" yaml:"increment"`
}

// New builds a Policy from the config.
func New(cfg Config) Policy {
	initial := cfg.InitialDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	max := cfg.MaxDelay
	if max <= 0 {
		max = DefaultMaxDelay
	}

	switch cfg.Strategy {
	case StrategyLinear:
		inc := cfg.Increment
		if inc <= 0 {
			inc = DefaultIncrement
		}
		return &Linear{Initial: initial, Increment: inc, Max: max}

	case StrategyFixed:
		return &Fixed{Interval: initial}

	case StrategyNone:
		return None{}

	default:
		mult := cfg.Multiplier
		if mult <= 0 {
			mult = DefaultMultiplier
		}
		rnd := cfg.Randomization
		if rnd <= 0 {
			rnd = DefaultRandomization
		}
		return &Exponential{
			Initial:       initial,
			Max:           max,
			Multiplier:    mult,
			Randomization: rnd,
		}
	}
}
