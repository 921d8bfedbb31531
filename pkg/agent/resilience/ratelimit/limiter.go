// Package ratelimit provides token-bucket admission control with a
// process-wide cooldown gate for the Agent Service pipeline.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// minPoll bounds how briefly a waiter sleeps before re-checking limiter state.
// Refill math and cooldown can both shift under concurrent acquisitions, so
// waiters always re-evaluate after waking.
const minPoll = 10 * time.Millisecond

// Config defines token-bucket and cooldown parameters.
type Config struct {
	RatePerSecond   float64       // Token refill rate (requests per second)
	Burst           int           // Maximum bucket capacity
	DefaultCooldown time.Duration // Cooldown applied when a violation carries no usable hint
}

// Limiter is a token bucket with continuous refill plus a cooldown gate.
// A registered rate-limit violation suspends all callers until the cooldown
// deadline passes, regardless of bucket contents.
type Limiter struct {
	mu sync.Mutex

	tokens        float64
	burst         float64
	rate          float64
	lastRefill    time.Time
	cooldownUntil time.Time

	defaultCooldown time.Duration

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// Stats is a snapshot of limiter state.
type Stats struct {
	Tokens        float64   `json:"tokens"`
	Burst         float64   `json:"burst"`
	RatePerSecond float64   `json:"rate_per_second"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// New creates a limiter starting with a full bucket.
func New(cfg Config) *Limiter {
	l := &Limiter{
		tokens:          float64(cfg.Burst),
		burst:           float64(cfg.Burst),
		rate:            cfg.RatePerSecond,
		defaultCooldown: cfg.DefaultCooldown,
		now:             time.Now,
	}
	l.lastRefill = l.now()
	return l
}

// Acquire blocks until one token is available, then debits it. A cancelled
// acquire never debits a token. During cooldown the wait is the remaining
// cooldown, not the refill formula.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()

		var wait time.Duration
		if now.Before(l.cooldownUntil) {
			wait = l.cooldownUntil.Sub(now)
		} else {
			l.refillLocked(now)
			if l.tokens >= 1.0 {
				l.tokens--
				l.mu.Unlock()
				return nil
			}
			needed := 1.0 - l.tokens
			if l.rate > 0 {
				wait = time.Duration(needed / l.rate * float64(time.Second))
			} else {
				wait = time.Second
			}
		}
		l.mu.Unlock()

		if wait < minPoll {
			wait = minPoll
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refillLocked credits tokens for elapsed time, capped at burst capacity.
// Caller must hold l.mu.
func (l *Limiter) refillLocked(now time.Time) {
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed.Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now
}

// RegisterViolation records a rate-limit violation from the service. The
// cooldown deadline becomes now + max(hint, 0), or now + the configured
// default when the hint is absent or non-positive. The deadline only ever
// moves forward, and all available tokens are discarded so no in-flight
// caller slips through before it passes.
func (l *Limiter) RegisterViolation(hint time.Duration) {
	wait := hint
	if wait <= 0 {
		wait = l.defaultCooldown
	}
	if wait <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	target := now.Add(wait)
	if target.After(l.cooldownUntil) {
		l.cooldownUntil = target
	}
	l.lastRefill = now
	l.tokens = 0
}

// InCooldown reports whether the limiter is currently suspended.
func (l *Limiter) InCooldown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now().Before(l.cooldownUntil)
}

// Stats returns a snapshot of limiter state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Tokens:        l.tokens,
		Burst:         l.burst,
		RatePerSecond: l.rate,
		CooldownUntil: l.cooldownUntil,
	}
}
