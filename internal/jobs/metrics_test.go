package jobmetrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, metrics.Track("rbac:registry_sync").End(nil))
	failure := errors.New("boom")
	assert.ErrorIs(t, metrics.Track("rbac:registry_sync").End(failure), failure)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("rbac:registry_sync", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("rbac:registry_sync", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("rbac:registry_sync")))
}

func TestTrackerMarksSkippedRetries(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	err := fmt.Errorf("bad catalog: %w", asynq.SkipRetry)

	assert.ErrorIs(t, metrics.Track("rbac:registry_sync").End(err), asynq.SkipRetry)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("rbac:registry_sync", StatusSkipped)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.runs.WithLabelValues("rbac:registry_sync", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("rbac:registry_sync")))
}

func TestAddAffectedIgnoresNonPositive(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.AddAffected("rbac:override_prune", 0)
	metrics.AddAffected("rbac:override_prune", 3)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.affected.WithLabelValues("rbac:override_prune")))
}

func TestNilMetricsTrackerIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.AddAffected("job", 1)
	assert.NoError(t, metrics.Track("job").End(nil))
}
