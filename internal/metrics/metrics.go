// Package metrics exposes Prometheus counters for pricing and alerting.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "skinwatch"

type Metrics struct {
	registry *prometheus.Registry

	sourceFetches    *prometheus.CounterVec
	catalogRefreshes *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	consensusAbsent  prometheus.Counter
	alertsFired      *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	portfolioValue   prometheus.Gauge
}

// New registers all collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sourceFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Price source lookups by source and outcome",
		}, []string{"source", "outcome"}),
		catalogRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refreshes_total",
			Help:      "Bulk catalog downloads by source and outcome",
		}, []string{"source", "outcome"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result",
		}, []string{"cache", "result"}),
		consensusAbsent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_absent_total",
			Help:      "Aggregations where no eligible source answered",
		}),
		alertsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Fired notification events by kind",
		}, []string{"kind"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by outcome",
		}, []string{"outcome"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Background job run time",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job"}),
		portfolioValue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_value",
			Help:      "Last computed portfolio value in the base currency",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SourceFetch(source string, ok bool) {
	if m == nil {
		return
	}
	m.sourceFetches.WithLabelValues(source, outcome(ok)).Inc()
}

func (m *Metrics) CatalogRefresh(source string, ok bool) {
	if m == nil {
		return
	}
	m.catalogRefreshes.WithLabelValues(source, outcome(ok)).Inc()
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) ConsensusAbsent() {
	if m == nil {
		return
	}
	m.consensusAbsent.Inc()
}

func (m *Metrics) AlertFired(kind string) {
	if m == nil {
		return
	}
	m.alertsFired.WithLabelValues(kind).Inc()
}

func (m *Metrics) Notification(ok bool) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) JobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) PortfolioValue(v float64) {
	if m == nil {
		return
	}
	m.portfolioValue.Set(v)
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
