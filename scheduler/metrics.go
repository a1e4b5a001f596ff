/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AttemptResult is a label value of the attempts counter.
type AttemptResult string

// Attempt results.
const (
	AttemptResultSuccess AttemptResult = "success"
	AttemptResultFailure AttemptResult = "failure"
)

// Outcome is a label value of the settled requests counter.
type Outcome string

// Request outcomes.
const (
	OutcomeResolved  Outcome = "resolved"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeStopped   Outcome = "stopped"
)

// MetricsCollector receives the scheduler's state changes.
// Calls are made while the scheduler's lock is held, so implementations must not block.
type MetricsCollector interface {
	SetQueueLength(n int)
	SetInFlight(n int)
	SetBackoff(d time.Duration)
	IncAttempts(result AttemptResult)
	IncSettled(outcome Outcome)
}

// PrometheusMetricsOpts configures PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to all metric names.
	Namespace string
	// ConstLabels are attached to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics is a MetricsCollector backed by Prometheus.
type PrometheusMetrics struct {
	QueueLength prometheus.Gauge
	InFlight    prometheus.Gauge
	Backoff     prometheus.Gauge
	Attempts    *prometheus.CounterVec
	Settled     *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	return &PrometheusMetrics{
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "scheduler_queue_length",
			Help:        "Number of requests waiting for dispatch.",
			ConstLabels: opts.ConstLabels,
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "scheduler_in_flight_requests",
			Help:        "Number of calls currently in flight.",
			ConstLabels: opts.ConstLabels,
		}),
		Backoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "scheduler_backoff_seconds",
			Help:        "Current shared backoff interval.",
			ConstLabels: opts.ConstLabels,
		}),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "scheduler_attempts_total",
			Help:        "Number of transport calls by result.",
			ConstLabels: opts.ConstLabels,
		}, []string{"result"}),
		Settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "scheduler_requests_settled_total",
			Help:        "Number of settled requests by outcome.",
			ConstLabels: opts.ConstLabels,
		}, []string{"outcome"}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.QueueLength, pm.InFlight, pm.Backoff, pm.Attempts, pm.Settled)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.QueueLength)
	prometheus.Unregister(pm.InFlight)
	prometheus.Unregister(pm.Backoff)
	prometheus.Unregister(pm.Attempts)
	prometheus.Unregister(pm.Settled)
}

// SetQueueLength implements MetricsCollector.
func (pm *PrometheusMetrics) SetQueueLength(n int) {
	pm.QueueLength.Set(float64(n))
}

// SetInFlight implements MetricsCollector.
func (pm *PrometheusMetrics) SetInFlight(n int) {
	pm.InFlight.Set(float64(n))
}

// SetBackoff implements MetricsCollector.
func (pm *PrometheusMetrics) SetBackoff(d time.Duration) {
	pm.Backoff.Set(d.Seconds())
}

// IncAttempts implements MetricsCollector.
func (pm *PrometheusMetrics) IncAttempts(result AttemptResult) {
	pm.Attempts.WithLabelValues(string(result)).Inc()
}

// IncSettled implements MetricsCollector.
func (pm *PrometheusMetrics) IncSettled(outcome Outcome) {
	pm.Settled.WithLabelValues(string(outcome)).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) SetQueueLength(int)        {}
func (disabledMetrics) SetInFlight(int)           {}
func (disabledMetrics) SetBackoff(time.Duration)  {}
func (disabledMetrics) IncAttempts(AttemptResult) {}
func (disabledMetrics) IncSettled(Outcome)        {}
