// Package metrics exports store events as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"storyfeed/internal/feed"
)

// Collector implements feed.Metrics on a Prometheus registry.
type Collector struct {
	mutations     *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	failOpen      prometheus.Counter
	cacheFallback prometheus.Counter
	remoteLatency *prometheus.HistogramVec
}

var _ feed.Metrics = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyfeed_mutations_total",
			Help: "Optimistic mutations applied, by operation.",
		}, []string{"op"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyfeed_rollbacks_total",
			Help: "Mutations rolled back after a remote failure, by operation.",
		}, []string{"op"}),
		failOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyfeed_moderation_fail_open_total",
			Help: "Texts accepted because the moderation check failed.",
		}),
		cacheFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyfeed_cache_fallback_total",
			Help: "Refreshes served from the local cache.",
		}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storyfeed_remote_latency_seconds",
			Help:    "Latency of remote commits, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.mutations,
		c.rollbacks,
		c.failOpen,
		c.cacheFallback,
		c.remoteLatency,
	)
	return c
}

func (c *Collector) RecordMutation(op string) {
	c.mutations.WithLabelValues(op).Inc()
}

func (c *Collector) RecordRollback(op string) {
	c.rollbacks.WithLabelValues(op).Inc()
}

func (c *Collector) RecordModerationFailOpen() {
	c.failOpen.Inc()
}

func (c *Collector) RecordCacheFallback() {
	c.cacheFallback.Inc()
}

func (c *Collector) RecordRemoteLatency(op string, d time.Duration) {
	c.remoteLatency.WithLabelValues(op).Observe(d.Seconds())
}
