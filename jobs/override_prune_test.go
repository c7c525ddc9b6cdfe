package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/studentdesk/studentdesk/internal/jobs"
	"github.com/studentdesk/studentdesk/internal/rbac"
)

type fakePruner struct {
	removed int64
	err     error
	calls   int
}

func (f *fakePruner) PruneInactiveOverrides(context.Context) (int64, error) {
	f.calls++
	return f.removed, f.err
}

func TestOverridePruneJob(t *testing.T) {
	pruner := &fakePruner{removed: 2}
	job := NewOverridePruneJob(pruner, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), NewOverridePruneTask()))
	assert.Equal(t, 1, pruner.calls)
}

func TestOverridePruneJobError(t *testing.T) {
	storeErr := errors.New("overrides unavailable")
	job := NewOverridePruneJob(&fakePruner{err: storeErr}, discardLogger(), nil)

	assert.ErrorIs(t, job.Handle(context.Background(), NewOverridePruneTask()), storeErr)
}

func TestOverridePruneJobAgainstMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := rbac.NewMemoryStore()
	store.PutStaff(rbac.StaffMember{ID: 5, RoleTypeID: 2, Active: false})
	store.PutStaff(rbac.StaffMember{ID: 6, RoleTypeID: 2, Active: true})
	require.NoError(t, store.SetOverride(ctx, rbac.StaffOverride{StaffID: 5, Module: "students", Action: "view", Allowed: true}))
	require.NoError(t, store.SetOverride(ctx, rbac.StaffOverride{StaffID: 6, Module: "students", Action: "view", Allowed: true}))

	service := rbac.NewService(rbac.ServiceConfig{Store: store, Staff: store, Logger: discardLogger()})
	job := NewOverridePruneJob(service, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(ctx, NewOverridePruneTask()))
	assert.False(t, store.GetOverride(ctx, 5, "students", "view").IsFound())
	assert.True(t, store.GetOverride(ctx, 6, "students", "view").IsFound())
}
