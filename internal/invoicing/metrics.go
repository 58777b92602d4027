package invoicing

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/payalloc/internal/allocation"
)

// Metrics exposes Prometheus collectors for invoice runs.
type Metrics struct {
	runs      *prometheus.CounterVec
	matches   *prometheus.CounterVec
	invoiced  *prometheus.CounterVec
	cache     *prometheus.CounterVec
	duration  prometheus.Histogram
	unmatched prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the run metrics against registerer, falling back to
// the default Prometheus registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payalloc_runs_total",
			Help: "Invoice runs partitioned by how the result was obtained.",
		}, []string{"source"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payalloc_employee_matches_total",
			Help: "Payroll employees partitioned by identity resolution method.",
		}, []string{"method"}),
		invoiced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payalloc_invoiced_amount_total",
			Help: "Invoiced dollars partitioned by line category.",
		}, []string{"category"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payalloc_run_cache_requests_total",
			Help: "Run cache lookups partitioned by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "payalloc_engine_duration_seconds",
			Help:    "Engine computation time per run.",
			Buckets: prometheus.DefBuckets,
		}),
		unmatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payalloc_last_run_unmatched_employees",
			Help: "Unmatched payroll employees in the most recent computed run.",
		}),
	}
	registerer.MustRegister(m.runs, m.matches, m.invoiced, m.cache, m.duration, m.unmatched)
	return m
}

func (m *Metrics) observeSource(source string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(source).Inc()
}

func (m *Metrics) observeCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) observeResult(result allocation.Result, seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
	m.unmatched.Set(float64(len(result.Unmatched)))
	for _, match := range result.Matches {
		m.matches.WithLabelValues(string(match.Method)).Inc()
	}
	for _, c := range allocation.LineCategories {
		if amount := result.Totals.ByCategory[c]; amount > 0 {
			m.invoiced.WithLabelValues(string(c)).Add(amount)
		}
	}
}
