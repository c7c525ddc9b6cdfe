package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreOverrideUpsert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SetOverride(ctx, StaffOverride{StaffID: 1, Module: "Students", Action: "Delete", Allowed: true}))
	require.NoError(t, store.SetOverride(ctx, StaffOverride{StaffID: 1, Module: "students", Action: "delete", Allowed: false}))

	list := store.Overrides(ctx, 1)
	require.True(t, list.IsFound())
	require.Len(t, list.Value, 1, "one row per staff, module and action")
	assert.False(t, list.Value[0].Allowed)
	assert.False(t, list.Value[0].UpdatedAt.IsZero())

	assert.Equal(t, StatusNotFound, store.GetOverride(ctx, 2, "students", "delete").Status)
	assert.ErrorIs(t, store.RemoveOverride(ctx, 2, "students", "delete"), ErrNotFound)
	require.NoError(t, store.RemoveOverride(ctx, 1, "students", "delete"))
	assert.Empty(t, store.Overrides(ctx, 1).Value)
}

func TestMemoryStoreRoleDefaults(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SetRoleDefault(ctx, RoleDefault{RoleTypeID: 7, Module: "payments", Action: "write", Allowed: true}))
	require.NoError(t, store.SetRoleDefault(ctx, RoleDefault{RoleTypeID: 7, Module: "payments", Action: "read", Allowed: true}))
	require.NoError(t, store.SetRoleDefault(ctx, RoleDefault{RoleTypeID: 8, Module: "payments", Action: "read", Allowed: false}))

	list := store.RoleDefaults(ctx, 7)
	require.Len(t, list.Value, 2)
	assert.Equal(t, "payments.read", list.Value[0].Key())

	got := store.GetRoleDefault(ctx, 8, "payments", "read")
	require.True(t, got.IsFound())
	assert.False(t, got.Value.Allowed)
	assert.ErrorIs(t, store.RemoveRoleDefault(ctx, 9, "payments", "read"), ErrNotFound)
}

func TestMemoryStoreActiveDefinitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertDefinition(ctx, PermissionDefinition{Module: "b", Action: "x", Active: true}))
	require.NoError(t, store.UpsertDefinition(ctx, PermissionDefinition{Module: "a", Action: "x", Active: true}))
	require.NoError(t, store.UpsertDefinition(ctx, PermissionDefinition{Module: "c", Action: "x", Active: false}))

	defs := store.ActiveDefinitions(ctx)
	require.True(t, defs.IsFound())
	require.Len(t, defs.Value, 2)
	assert.Equal(t, "a.x", defs.Value[0].Key())
	assert.True(t, store.GetDefinition(ctx, "C", "X").IsFound())
}

func TestMemoryStoreStoresCanonicalKeys(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertDefinition(ctx, PermissionDefinition{Module: " Reports ", Action: "Financial", Active: true}))

	got := store.GetDefinition(ctx, "reports", "financial")
	require.True(t, got.IsFound())
	assert.Equal(t, "reports", got.Value.Module)
	assert.Equal(t, "financial", got.Value.Action)

	active := store.ActiveDefinitions(ctx)
	require.Len(t, active.Value, 1)
	assert.Equal(t, "reports.financial", active.Value[0].Key())
}
