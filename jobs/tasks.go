package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/studentdesk/studentdesk/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRegistrySync upserts the built-in permission catalog into the registry.
	TaskRegistrySync = "rbac:registry_sync"
	// TaskOverridePrune removes overrides that belong to deactivated staff.
	TaskOverridePrune = "rbac:override_prune"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RegistrySyncPayload selects the catalog to sync. An empty CatalogPath means
// the embedded catalog.
type RegistrySyncPayload struct {
	CatalogPath string `json:"catalog_path,omitempty"`
}

// NewRegistrySyncTask constructs a registry sync task.
func NewRegistrySyncTask(catalogPath string) (*asynq.Task, error) {
	body, err := json.Marshal(RegistrySyncPayload{CatalogPath: catalogPath})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRegistrySync, body, asynq.Queue(QueueDefault)), nil
}

// NewOverridePruneTask constructs an override prune task.
func NewOverridePruneTask() *asynq.Task {
	return asynq.NewTask(TaskOverridePrune, nil, asynq.Queue(QueueDefault))
}
