// Package jobmetrics instruments asynq task handlers.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded in the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusSkipped marks failures wrapped in asynq.SkipRetry.
	StatusSkipped = "skipped"
)

// Metrics holds the per-task collectors.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	affected *prometheus.CounterVec
}

var (
	sharedOnce    sync.Once
	sharedMetrics *Metrics
)

// NewMetrics registers the collectors on registerer. A nil registerer means
// the process-wide default registry; those collectors are created once and
// shared by every caller.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	sharedOnce.Do(func() {
		sharedMetrics = register(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studentdesk_jobs_total",
			Help: "Task runs by task type and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studentdesk_jobs_failures_total",
			Help: "Task runs that returned an error, including skipped retries.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studentdesk_job_duration_seconds",
			Help:    "Task run duration.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		}, []string{"job"}),
		affected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studentdesk_job_rows_affected_total",
			Help: "Rows written or removed by tasks.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.affected)
	return m
}

// Tracker times one task run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job. It is safe on a nil Metrics.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run and returns err unchanged so handlers can
// `return tracker.End(err)`.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	m.runs.WithLabelValues(t.job, outcome(err)).Inc()
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
	}
	return err
}

// AddAffected counts rows a job wrote or removed.
func (m *Metrics) AddAffected(job string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.affected.WithLabelValues(job).Add(float64(count))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusSkipped
	default:
		return StatusFailure
	}
}
