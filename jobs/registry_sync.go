package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/studentdesk/studentdesk/internal/jobs"
	"github.com/studentdesk/studentdesk/internal/rbac"
)

// RegistrySyncer writes permission definitions into the registry.
type RegistrySyncer interface {
	SyncRegistry(ctx context.Context, defs []rbac.PermissionDefinition) (int, error)
}

// RegistrySyncJob keeps the permission registry in step with the catalog.
type RegistrySyncJob struct {
	Syncer  RegistrySyncer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics

	readFile func(string) ([]byte, error)
}

// NewRegistrySyncJob constructs the job handler.
func NewRegistrySyncJob(syncer RegistrySyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *RegistrySyncJob {
	return &RegistrySyncJob{Syncer: syncer, Logger: logger, Metrics: metrics, readFile: os.ReadFile}
}

// Handle executes the registry sync job.
func (j *RegistrySyncJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Syncer == nil {
		return errors.New("registry sync: dependencies not configured")
	}
	var payload RegistrySyncPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("registry sync: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.metrics().Track(TaskRegistrySync)
	start := time.Now()
	defs, err := j.catalog(payload.CatalogPath)
	if err != nil {
		j.log().Error("load catalog", slog.String("path", payload.CatalogPath), slog.Any("error", err))
		return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	n, err := j.Syncer.SyncRegistry(ctx, defs)
	if err != nil {
		j.log().Error("sync registry", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddAffected(TaskRegistrySync, int64(n))
	j.log().Info("permission registry synced", slog.Int("definitions", n), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *RegistrySyncJob) catalog(path string) ([]rbac.PermissionDefinition, error) {
	if path == "" {
		return rbac.DefaultCatalog(), nil
	}
	read := j.readFile
	if read == nil {
		read = os.ReadFile
	}
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	return rbac.ParseCatalog(data)
}

func (j *RegistrySyncJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RegistrySyncJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRegistrySync))
	}
	return slog.Default().With(slog.String("job", TaskRegistrySync))
}
