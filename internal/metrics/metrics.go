// Package metrics exposes Prometheus instrumentation for the proxy. All
// methods are nil-safe so library code can be used without a registry, e.g.
// from the one-shot CLI commands.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared across the resolver and gateway.
type Metrics struct {
	requests   *prometheus.CounterVec
	cacheOps   *prometheus.CounterVec
	transcodes *prometheus.CounterVec
	fallbacks  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageproxy_requests_total",
			Help: "Proxy requests by response status code.",
		}, []string{"status"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageproxy_url_cache_operations_total",
			Help: "Signed-URL cache lookups by outcome (hit, miss, expired).",
		}, []string{"outcome"}),
		transcodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageproxy_transcodes_total",
			Help: "Completed transcodes by output format.",
		}, []string{"format"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imageproxy_transcode_fallbacks_total",
			Help: "Requests served with original bytes after a transcode failure.",
		}),
	}
	reg.MustRegister(m.requests, m.cacheOps, m.transcodes, m.fallbacks)
	return m
}

func (m *Metrics) Request(status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(status).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues("miss").Inc()
}

func (m *Metrics) CacheExpired() {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues("expired").Inc()
}

func (m *Metrics) Transcode(format string) {
	if m == nil {
		return
	}
	m.transcodes.WithLabelValues(format).Inc()
}

func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
