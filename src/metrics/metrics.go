package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the cascade and worker metrics. A nil *Collector is a no-op.
type Collector struct {
	tierAttempts *prometheus.CounterVec
	tierDuration *prometheus.HistogramVec
	results      *prometheus.CounterVec
	isolatedRuns *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	gatherer     prometheus.Gatherer
}

// NewCollector registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		tierAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_tier_attempts_total",
			Help: "Tier attempts by task, tier and outcome.",
		}, []string{"task", "tier", "outcome"}),
		tierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cascade_tier_duration_seconds",
			Help:    "Time spent in a single tier attempt.",
			Buckets: prometheus.ExponentialBuckets(0.005, 3, 10),
		}, []string{"task", "tier"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_results_total",
			Help: "Cascade outcomes by task and status.",
		}, []string{"task", "status"}),
		isolatedRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isolated_runs_total",
			Help: "Isolated worker runs by task and outcome.",
		}, []string{"task", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedding_cache_lookups_total",
			Help: "Embedding cache lookups by result.",
		}, []string{"result"}),
		gatherer: reg,
	}

	reg.MustRegister(c.tierAttempts, c.tierDuration, c.results, c.isolatedRuns, c.cacheLookups)
	return c
}

func (c *Collector) ObserveTier(task, tier, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.tierAttempts.WithLabelValues(task, tier, outcome).Inc()
	c.tierDuration.WithLabelValues(task, tier).Observe(d.Seconds())
}

func (c *Collector) ObserveResult(task, status string) {
	if c == nil {
		return
	}
	c.results.WithLabelValues(task, status).Inc()
}

func (c *Collector) ObserveIsolatedRun(task, outcome string) {
	if c == nil {
		return
	}
	c.isolatedRuns.WithLabelValues(task, outcome).Inc()
}

func (c *Collector) ObserveCacheLookup(hits, misses int) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues("hit").Add(float64(hits))
	c.cacheLookups.WithLabelValues("miss").Add(float64(misses))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
