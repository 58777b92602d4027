// Package jobmetrics instruments background job executions.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job statuses recorded on payalloc_jobs_total.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusRejected = "rejected"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rejected *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration and success/failure counts,
// and returns err untouched.
func (t *Tracker) End(err error) error {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	return t.finish(status, err)
}

// Reject finalises a run whose payload will never succeed. Rejections count
// separately from failures because they are not retried.
func (t *Tracker) Reject(reason string, err error) error {
	if t != nil && t.metrics != nil && t.job != "" {
		t.metrics.rejected.WithLabelValues(t.job, reason).Inc()
	}
	return t.finish(StatusRejected, err)
}

func (t *Tracker) finish(status string, err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	if status == StatusFailure {
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payalloc_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payalloc_jobs_failures_total",
		Help: "Total retryable failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payalloc_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payalloc_jobs_rejected_total",
		Help: "Job payloads rejected without retry, by reason.",
	}, []string{"job", "reason"})
	registerer.MustRegister(runs, failures, duration, rejected)
	return &Metrics{runs: runs, failures: failures, duration: duration, rejected: rejected}
}
