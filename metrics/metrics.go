// Package metrics exposes Prometheus collectors for the quote cache, the
// refresh worker and provider fetches. A nil *Metrics is valid and records
// nothing, so components can take one unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quotesquirrel"

// Metrics bundles every collector.
type Metrics struct {
	cacheLookups  *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	ticks         *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	backoffKeys   prometheus.Gauge
	breakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg means a
// fresh private registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Read-path cache lookups by result (fresh, stale, miss, error).",
		}, []string{"result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Provider fetches by provider and outcome.",
		}, []string{"provider", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Provider fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_ticks_total",
			Help:      "Refresh worker ticks by outcome.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_queue_depth",
			Help:      "Tickers waiting for a background refresh.",
		}),
		backoffKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backoff_tickers",
			Help:      "Tickers with an active rate-limit backoff record.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Provider circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"provider"}),
		gatherer: gatherer,
	}

	for _, c := range []prometheus.Collector{
		m.cacheLookups, m.fetches, m.fetchDuration, m.ticks,
		m.queueDepth, m.backoffKeys, m.breakerState,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// CacheLookup counts one read-path lookup.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Fetch records one provider call.
func (m *Metrics) Fetch(provider, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(provider, outcome).Inc()
	m.fetchDuration.WithLabelValues(provider).Observe(took.Seconds())
}

// Tick counts one worker tick.
func (m *Metrics) Tick(outcome string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
}

// QueueDepth sets the refresh queue gauge.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// BackoffKeys sets the backoff gauge.
func (m *Metrics) BackoffKeys(n int) {
	if m == nil {
		return
	}
	m.backoffKeys.Set(float64(n))
}

// BreakerState records a provider breaker transition.
func (m *Metrics) BreakerState(provider string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(provider).Set(float64(state))
}

// Handler serves the collectors in the Prometheus text format. Without a
// gatherer it falls back to the default registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
