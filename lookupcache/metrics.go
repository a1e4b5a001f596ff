/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lookupcache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of metrics to analyze how (effectively or not) the cache is used.
type MetricsCollector interface {
	// SetEntries sets the number of cached addresses.
	SetEntries(int)

	// IncHits increments the number of lookups served from the cache.
	IncHits()

	// IncMisses increments the number of lookups that were not cached or expired.
	IncMisses()

	// IncCoalesced increments the number of misses that joined a lookup already in progress.
	IncCoalesced()

	// AddEvictions adds to the number of entries evicted to make room for new ones.
	AddEvictions(int)
}

// PrometheusMetrics represents Prometheus metrics for the cache.
type PrometheusMetrics struct {
	Entries        prometheus.Gauge
	HitsTotal      prometheus.Counter
	MissesTotal    prometheus.Counter
	CoalescedTotal prometheus.Counter
	EvictionsTotal prometheus.Counter
}

// NewPrometheusMetrics creates PrometheusMetrics with the given namespace.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lookup_cache_entries",
			Help:      "Number of addresses in the lookup cache.",
		}),
		HitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_hits_total",
			Help:      "Number of lookups served from the cache.",
		}),
		MissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_misses_total",
			Help:      "Number of lookups not found in the cache.",
		}),
		CoalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_coalesced_total",
			Help:      "Number of missed lookups that joined a lookup already in progress.",
		}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_evictions_total",
			Help:      "Number of evicted entries.",
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Entries, pm.HitsTotal, pm.MissesTotal, pm.CoalescedTotal, pm.EvictionsTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Entries)
	prometheus.Unregister(pm.HitsTotal)
	prometheus.Unregister(pm.MissesTotal)
	prometheus.Unregister(pm.CoalescedTotal)
	prometheus.Unregister(pm.EvictionsTotal)
}

func (pm *PrometheusMetrics) SetEntries(n int)   { pm.Entries.Set(float64(n)) }
func (pm *PrometheusMetrics) IncHits()           { pm.HitsTotal.Inc() }
func (pm *PrometheusMetrics) IncMisses()         { pm.MissesTotal.Inc() }
func (pm *PrometheusMetrics) IncCoalesced()      { pm.CoalescedTotal.Inc() }
func (pm *PrometheusMetrics) AddEvictions(n int) { pm.EvictionsTotal.Add(float64(n)) }

type disabledMetrics struct{}

func (disabledMetrics) SetEntries(int)   {}
func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) IncCoalesced()    {}
func (disabledMetrics) AddEvictions(int) {}
