// Package metrics defines the Prometheus collectors of the mining services
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	MiningRunsTotal      *prometheus.CounterVec
	MiningDuration       *prometheus.HistogramVec
	ItemsetsEmitted      *prometheus.CounterVec
	CandidatesVisited    prometheus.Counter
	CandidatesPruned     *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	BatchesAppended      prometheus.Counter
	TransactionsAppended prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// RunSample describes one finished mining run.
type RunSample struct {
	Mode     string
	Status   string
	Duration time.Duration
	Emitted  int64
	Visited  int64
	// Pruned counts candidates cut per pruning rule.
	Pruned map[string]int64
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		MiningRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mining_runs_total",
				Help: "Mining runs by mode and status (ok, invalid, cancelled, error).",
			},
			[]string{"mode", "status"},
		),
		MiningDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mining_duration_seconds",
				Help:    "Wall time of successful mining runs.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"mode"},
		),
		ItemsetsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mining_itemsets_emitted_total",
				Help: "Itemsets reported by mining runs.",
			},
			[]string{"mode"},
		),
		CandidatesVisited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mining_candidates_visited_total",
				Help: "Candidate itemsets evaluated by the search.",
			},
		),
		CandidatesPruned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mining_candidates_pruned_total",
				Help: "Candidates cut by each pruning rule.",
			},
			[]string{"rule"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mining_cache_hits_total",
				Help: "Mining requests answered from the result cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mining_cache_misses_total",
				Help: "Mining requests that had to be mined.",
			},
		),
		BatchesAppended: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stream_batches_appended_total",
				Help: "Transaction batches folded into the incremental miner.",
			},
		),
		TransactionsAppended: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stream_transactions_appended_total",
				Help: "Transactions folded into the incremental miner.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.MiningRunsTotal,
		m.MiningDuration,
		m.ItemsetsEmitted,
		m.CandidatesVisited,
		m.CandidatesPruned,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.BatchesAppended,
		m.TransactionsAppended,
		m.CircuitBreakerState,
	)

	return m
}

// RecordRun updates the mining collectors for one run. Durations and
// counts are only observed for successful runs.
func (m *Metrics) RecordRun(s RunSample) {
	m.MiningRunsTotal.WithLabelValues(s.Mode, s.Status).Inc()
	if s.Status != "ok" {
		return
	}
	m.MiningDuration.WithLabelValues(s.Mode).Observe(s.Duration.Seconds())
	m.ItemsetsEmitted.WithLabelValues(s.Mode).Add(float64(s.Emitted))
	m.CandidatesVisited.Add(float64(s.Visited))
	for rule, n := range s.Pruned {
		if n > 0 {
			m.CandidatesPruned.WithLabelValues(rule).Add(float64(n))
		}
	}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
