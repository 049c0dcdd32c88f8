package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy decides how long to wait before reconnection attempt n and
// whether attempt n should happen at all. Attempt numbers start at 1.
type Policy interface {
	// Delay returns the wait duration before the given attempt.
	Delay(attempt int) time.Duration

	// ShouldRetry reports whether the given attempt is allowed under
	// maxAttempts.
	ShouldRetry(attempt, maxAttempts int) bool

	// Reset clears any internal counters. No-op for the stateless
	// strategies in this package.
	Reset()
}

// Default parameters applied by the factory when a field is zero.
const (
	DefaultInitialDelay  = 1 * time.Second
	DefaultMaxDelay      = 60 * time.Second
	DefaultMultiplier    = 2.0
	DefaultRandomization = 0.25
	DefaultIncrement     = 1 * time.Second
)

// Exponential grows the delay geometrically and perturbs it with
// uniform jitter so that many clients losing the same endpoint do not
// reconnect in lockstep.
type Exponential struct {
	Initial       time.Duration
	Max           time.Duration
	Multiplier    float64
	Randomization float64

	// rnd allows tests to pin the jitter source. Nil means the shared
	// math/rand source.
	rnd *rand.Rand
}

// Delay returns Initial×Multiplier^(attempt−1) clamped to Max, jittered
// by ±Randomization.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := float64(e.Initial) * math.Pow(e.Multiplier, float64(attempt-1))
	if base > float64(e.Max) {
		base = float64(e.Max)
	}

	if e.Randomization > 0 {
		var f float64
		if e.rnd != nil {
			f = e.rnd.Float64()
		} else {
			f = rand.Float64()
		}
		// Uniform in [-Randomization, +Randomization].
		base *= 1 + e.Randomization*(2*f-1)
	}

	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func (e *Exponential) ShouldRetry(attempt, maxAttempts int) bool {
	return attempt <= maxAttempts
}

func (e *Exponential) Reset() {}

// Linear grows the delay by a fixed increment per attempt, with no
// jitter: Delay(n) = min(Initial + Increment×(n−1), Max).
type Linear struct {
	Initial   time.Duration
	Increment time.Duration
	Max       time.Duration
}

func (l *Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := l.Initial + time.Duration(attempt-1)*l.Increment
	if d > l.Max {
		d = l.Max
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (l *Linear) ShouldRetry(attempt, maxAttempts int) bool {
	return attempt <= maxAttempts
}

func (l *Linear) Reset() {}

// Fixed waits the same duration before every attempt.
type Fixed struct {
	Interval time.Duration
}

func (f *Fixed) Delay(attempt int) time.Duration { return f.Interval }

func (f *Fixed) ShouldRetry(attempt, maxAttempts int) bool {
	return attempt <= maxAttempts
}

func (f *Fixed) Reset() {}

// None never retries.
type None struct{}

func (None) Delay(attempt int) time.Duration { return 0 }

func (None) ShouldRetry(attempt, maxAttempts int) bool { return false }

func (None) Reset() {}
