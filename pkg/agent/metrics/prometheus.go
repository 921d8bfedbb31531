// Package metrics provides Prometheus-based metrics recording for the pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	attemptsTotal   prometheus.Counter
	requestDuration *prometheus.HistogramVec
	throttleTotal   *prometheus.CounterVec
	limiterWaitTime prometheus.Histogram
	cooldownTotal   prometheus.Counter
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_requests_total",
				Help: "Total number of logical agent calls by wire mode and final status",
			},
			[]string{"mode", "status"},
		),
		attemptsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_attempts_total",
				Help: "Total number of HTTP attempts spent on agent calls",
			},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_request_duration_seconds",
				Help:    "Duration of logical agent calls including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		throttleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_throttle_total",
				Help: "Total number of throttling events",
			},
			[]string{"reason"},
		),
		limiterWaitTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_limiter_wait_duration_seconds",
				Help:    "Time spent waiting for token admission",
				Buckets: prometheus.DefBuckets,
			},
		),
		cooldownTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_cooldown_registrations_total",
				Help: "Total number of cooldown windows registered from rate-limit violations",
			},
		),
	}
}

// ObserveRequest records a completed logical agent call.
func (p *PrometheusRecorder) ObserveRequest(mode string, status int, duration time.Duration) {
	p.requestsTotal.WithLabelValues(mode, strconv.Itoa(status)).Inc()
	p.requestDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// IncAttempt increments the HTTP attempt counter.
func (p *PrometheusRecorder) IncAttempt() {
	p.attemptsTotal.Inc()
}

// IncThrottle increments the throttle counter for rate-limit events.
func (p *PrometheusRecorder) IncThrottle(reason string) {
	p.throttleTotal.WithLabelValues(reason).Inc()
}

// ObserveLimiterWait records time spent waiting for token admission.
func (p *PrometheusRecorder) ObserveLimiterWait(duration time.Duration) {
	p.limiterWaitTime.Observe(duration.Seconds())
}

// IncCooldown increments the cooldown registration counter.
func (p *PrometheusRecorder) IncCooldown() {
	p.cooldownTotal.Inc()
}
