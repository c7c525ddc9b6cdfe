package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/studentdesk/studentdesk/internal/jobs"
)

// OverridePruner deletes overrides held by inactive staff.
type OverridePruner interface {
	PruneInactiveOverrides(ctx context.Context) (int64, error)
}

// OverridePruneJob removes overrides that can no longer apply.
type OverridePruneJob struct {
	Pruner  OverridePruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverridePruneJob constructs the job handler.
func NewOverridePruneJob(pruner OverridePruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverridePruneJob {
	return &OverridePruneJob{Pruner: pruner, Logger: logger, Metrics: metrics}
}

// Handle executes the prune job.
func (j *OverridePruneJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Pruner == nil {
		return errors.New("override prune: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskOverridePrune)
	removed, err := j.Pruner.PruneInactiveOverrides(ctx)
	if err != nil {
		j.log().Error("prune overrides", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddAffected(TaskOverridePrune, removed)
	if removed > 0 {
		j.log().Info("pruned overrides of inactive staff", slog.Int64("removed", removed))
	}
	return tracker.End(nil)
}

func (j *OverridePruneJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverridePruneJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOverridePrune))
	}
	return slog.Default().With(slog.String("job", TaskOverridePrune))
}
