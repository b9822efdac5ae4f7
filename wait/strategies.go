package wait

import (
	"math"
	"math/rand"
	"time"
)

// FixedStrategy waits the same duration between attempts.
type FixedStrategy struct {
	duration time.Duration
}

// NewFixedStrategy creates a new fixed wait strategy
func NewFixedStrategy(duration time.Duration) *FixedStrategy {
	return &FixedStrategy{duration: duration}
}

// Next returns the fixed duration
func (s *FixedStrategy) Next() (time.Duration, bool) {
	return s.duration, true
}

// Reset does nothing for a fixed strategy
func (s *FixedStrategy) Reset() {}

// ExponentialBackoffStrategy multiplies the delay on every attempt, capped
// at max, optionally with ±25% jitter.
type ExponentialBackoffStrategy struct {
	initial    time.Duration
	multiplier float64
	max        time.Duration
	jitter     bool
	attempt    int
}

// NewExponentialBackoffStrategy creates a new exponential backoff strategy
func NewExponentialBackoffStrategy(initial time.Duration, multiplier float64, max time.Duration, jitter bool) *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		initial:    initial,
		multiplier: multiplier,
		max:        max,
		jitter:     jitter,
	}
}

// Next returns the next backoff duration
func (s *ExponentialBackoffStrategy) Next() (time.Duration, bool) {
	duration := time.Duration(float64(s.initial) * math.Pow(s.multiplier, float64(s.attempt)))
	if s.max > 0 && duration > s.max {
		duration = s.max
	}

	if s.jitter {
		jitterRange := float64(duration) * 0.25
		duration = time.Duration(float64(duration) + (rand.Float64()-0.5)*2*jitterRange)
		if duration < 0 {
			duration = 0
		}
	}

	s.attempt++
	return duration, true
}

// Reset restarts the backoff from the initial duration
func (s *ExponentialBackoffStrategy) Reset() {
	s.attempt = 0
}
