// Package metrics exposes the relay's Prometheus surface: cache hit/miss
// counters and scheduler queue-depth gauges. Grounded on the teacher's
// monitoring/prometheus.go (CounterVec/GaugeVec construction against a
// dedicated registry, served over promhttp), trimmed to the two signals
// SPEC_FULL.md calls for instead of the teacher's full request/cost/token
// metric set — this relay has no billing or multi-provider routing to
// report on.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the relay's metrics behind a dedicated Prometheus
// registry, so /metrics never leaks Go-runtime defaults the teacher's
// shared global registry would otherwise pull in.
type Registry struct {
	registry *prometheus.Registry

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	queueDepth  *prometheus.GaugeVec
}

// New builds and registers the relay's metric collectors.
func New() *Registry {
	registry := prometheus.NewRegistry()

	cacheHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmrelay",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by tenant and tier (exact, semantic).",
		},
		[]string{"tenant", "tier"},
	)
	cacheMisses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmrelay",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by tenant and tier (exact, semantic).",
		},
		[]string{"tenant", "tier"},
	)
	queueDepth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llmrelay",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Current number of queued jobs by lane.",
		},
		[]string{"lane"},
	)

	registry.MustRegister(cacheHits, cacheMisses, queueDepth)

	return &Registry{
		registry:    registry,
		cacheHits:   cacheHits,
		cacheMisses: cacheMisses,
		queueDepth:  queueDepth,
	}
}

// RecordCacheHit increments the hit counter for tenant/tier ("exact" or
// "semantic").
func (r *Registry) RecordCacheHit(tenant string, tier string) {
	if r == nil {
		return
	}
	r.cacheHits.WithLabelValues(tenant, tier).Inc()
}

// RecordCacheMiss increments the miss counter for tenant/tier.
func (r *Registry) RecordCacheMiss(tenant string, tier string) {
	if r == nil {
		return
	}
	r.cacheMisses.WithLabelValues(tenant, tier).Inc()
}

// SetQueueDepth reports the current depth of lane's queue.
func (r *Registry) SetQueueDepth(lane string, depth int) {
	if r == nil {
		return
	}
	r.queueDepth.WithLabelValues(lane).Set(float64(depth))
}

// Handler serves the registry's collected metrics in the Prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
