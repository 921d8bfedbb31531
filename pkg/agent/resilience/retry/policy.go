// Package retry drives a single logical Agent Service call through rate
// limiting, transport, and retry with exponential backoff.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the retry budget and backoff bounds for one executor.
// It is immutable configuration, never mutated at runtime.
type Policy struct {
	MaxRetries  int           // Retry attempts after the first (total attempts = MaxRetries + 1)
	BaseBackoff time.Duration // Base for the exponential backoff formula
	MaxBackoff  time.Duration // Cap for computed delays and server hints
}

// DefaultPolicy provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultPolicy = Policy{
	MaxRetries:  3,
	BaseBackoff: 500 * time.Millisecond,
	MaxBackoff:  60 * time.Second,
}

// jitterFraction bounds the additive jitter to 10% of the computed delay.
const jitterFraction = 0.1

// BackoffDelay computes the pre-jitter delay for the given attempt.
// Attempt numbering starts at 1 for the sleep after the first failed attempt:
// delay = min(base * 2^attempt, max).
func (p Policy) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(p.BaseBackoff) * math.Pow(2, float64(attempt)))
	if delay > p.MaxBackoff || delay < 0 {
		delay = p.MaxBackoff
	}
	return delay
}

// SleepFor computes the actual sleep before the next attempt. A positive
// server hint takes precedence over the backoff formula, capped at MaxBackoff
// the same way. Jitter is additive and uniform over [0, 10%] of the delay.
func (p Policy) SleepFor(attempt int, hint time.Duration) time.Duration {
	var delay time.Duration
	if hint > 0 {
		delay = hint
		if delay > p.MaxBackoff {
			delay = p.MaxBackoff
		}
	} else {
		delay = p.BackoffDelay(attempt)
	}
	jitter := time.Duration(float64(delay) * jitterFraction * rand.Float64()) //nolint:gosec // Jitter needs no crypto randomness
	return delay + jitter
}
