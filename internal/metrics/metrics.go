// Package metrics holds the Prometheus collectors for search, embedding
// degradation, and item lifecycle. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lostfound"

type Metrics struct {
	registry *prometheus.Registry

	searches          *prometheus.CounterVec
	searchLatency     *prometheus.HistogramVec
	searchHits        prometheus.Histogram
	degradedSearches  prometheus.Counter
	embeddingFailures *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	sweeps            *prometheus.CounterVec
	sweepArchived     prometheus.Counter
}

// New registers every collector on reg. A nil reg gets a fresh registry with
// the Go runtime and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m := &Metrics{
		registry: reg,
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Searches served, by scoring mode",
		}, []string{"mode"}),
		searchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Search latency in seconds, including embedding",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"mode"}),
		searchHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "hits",
			Help:      "Number of hits returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		degradedSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "degraded_total",
			Help:      "Searches that scored against the fallback vector",
		}),
		embeddingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "failures_total",
			Help:      "Embedding provider failures, by input kind",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Item status transitions, by target status and outcome",
		}, []string{"to", "outcome"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "sweeps_total",
			Help:      "Expiry sweeps run, by outcome",
		}, []string{"outcome"}),
		sweepArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "swept_items_total",
			Help:      "Items archived by expiry sweeps",
		}),
	}

	reg.MustRegister(
		m.searches,
		m.searchLatency,
		m.searchHits,
		m.degradedSearches,
		m.embeddingFailures,
		m.transitions,
		m.sweeps,
		m.sweepArchived,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveSearch(mode string, elapsed time.Duration, hits int, degraded bool) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(mode).Inc()
	m.searchLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
	m.searchHits.Observe(float64(hits))
	if degraded {
		m.degradedSearches.Inc()
	}
}

func (m *Metrics) EmbeddingFailed(kind string) {
	if m == nil {
		return
	}
	m.embeddingFailures.WithLabelValues(kind).Inc()
}

// Transition records a resolve or archive attempt. ok is false when the item
// was missing or already final.
func (m *Metrics) Transition(to string, ok bool) {
	if m == nil {
		return
	}
	outcome := "applied"
	if !ok {
		outcome = "rejected"
	}
	m.transitions.WithLabelValues(to, outcome).Inc()
}

func (m *Metrics) Sweep(archived int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sweeps.WithLabelValues("error").Inc()
		return
	}
	m.sweeps.WithLabelValues("ok").Inc()
	m.sweepArchived.Add(float64(archived))
}
