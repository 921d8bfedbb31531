// Package metrics provides metrics recording for Agent Service calls.
package metrics

import "time"

// Recorder defines the interface for recording pipeline metrics.
type Recorder interface {
	// ObserveRequest records a completed logical call: wire mode, final HTTP
	// status (0 for transport failure), and total duration including retries.
	ObserveRequest(mode string, status int, duration time.Duration)

	// IncAttempt increments the count of HTTP attempts issued.
	IncAttempt()

	// IncThrottle increments the throttle counter for rate-limit events.
	IncThrottle(reason string)

	// ObserveLimiterWait records time spent waiting for token admission.
	ObserveLimiterWait(duration time.Duration)

	// IncCooldown increments the counter of registered cooldown windows.
	IncCooldown()
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_ string, _ int, _ time.Duration) {}

// IncAttempt does nothing in the no-op recorder.
func (n *NoopRecorder) IncAttempt() {}

// IncThrottle does nothing in the no-op recorder.
func (n *NoopRecorder) IncThrottle(_ string) {}

// ObserveLimiterWait does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveLimiterWait(_ time.Duration) {}

// IncCooldown does nothing in the no-op recorder.
func (n *NoopRecorder) IncCooldown() {}
