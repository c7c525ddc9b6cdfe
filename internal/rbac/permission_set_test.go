package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionSetMergeOrder(t *testing.T) {
	f := newFixture(t)
	f.staff(StaffMember{ID: 42, RoleTypeID: roleBursar})
	f.roleDefault(t, roleBursar, "m", "a", true)
	f.roleDefault(t, roleBursar, "m", "b", true)
	f.override(t, 42, "m", "b", false)
	f.override(t, 42, "m", "c", true)

	set := f.resolver.PermissionSet(context.Background(), 42)
	assert.Equal(t, map[string]bool{"m.a": true, "m.b": false, "m.c": true}, set.Granted)
	assert.False(t, set.Degraded)
	assert.Equal(t, []string{"m.a", "m.c"}, set.Keys())
	assert.False(t, set.Allows("m", "b"))
}

func TestPermissionSetSkipsDeniedDefaults(t *testing.T) {
	f := newFixture(t)
	f.staff(StaffMember{ID: 42, RoleTypeID: roleBursar})
	f.roleDefault(t, roleBursar, "students", "delete", false)

	set := f.resolver.PermissionSet(context.Background(), 42)
	assert.Empty(t, set.Granted)
}

func TestPermissionSetAdminNav(t *testing.T) {
	f := newFixture(t)
	f.staff(StaffMember{ID: 10, RoleTypeID: roleAdmin, IsAdminRole: true})

	set := f.resolver.PermissionSet(context.Background(), 10)
	assert.True(t, set.Allows(NavModule, NavStaffList))
	assert.True(t, set.Allows(NavModule, NavPermissionsTab))
	assert.False(t, set.Allows(NavModule, NavRolesTab))
}

func TestPermissionSetSuperAdmin(t *testing.T) {
	f := newFixture(t)
	f.staff(StaffMember{ID: 1, IsSuperAdmin: true})
	f.definition(t, "students", "view", false)
	f.definition(t, "payments", "refund", false)
	require.NoError(t, f.store.UpsertDefinition(context.Background(), PermissionDefinition{Module: "legacy", Action: "old", Active: false}))

	set := f.resolver.PermissionSet(context.Background(), 1)
	assert.True(t, set.Allows("students", "view"))
	assert.True(t, set.Allows("payments", "refund"))
	assert.False(t, set.Allows("legacy", "old"))
	for _, key := range SuperAdminNav() {
		assert.True(t, set.AllowsKey(key), key)
	}
	assert.False(t, set.Degraded)
}

func TestPermissionSetInactiveSuperAdmin(t *testing.T) {
	f := newFixture(t)
	f.store.PutStaff(StaffMember{ID: 2, IsSuperAdmin: true, Active: false})
	f.definition(t, "students", "view", false)

	set := f.resolver.PermissionSet(context.Background(), 2)
	assert.True(t, set.Allows("students", "view"))
	assert.True(t, set.Allows(NavModule, NavDashboard))
}

func TestPermissionSetSuperAdminRegistryUnavailable(t *testing.T) {
	store := NewMemoryStore()
	store.PutStaff(StaffMember{ID: 1, IsSuperAdmin: true, Active: true})
	resolver := NewResolver(ResolverConfig{Staff: store, Registry: unavailableRegistry{}, Logger: discardLogger()})

	set := resolver.PermissionSet(context.Background(), 1)
	assert.True(t, set.Degraded)
	for _, def := range DefaultCatalog() {
		assert.True(t, set.AllowsKey(def.Key()), def.Key())
	}
}

func TestPermissionSetDegradedFallback(t *testing.T) {
	resolver := NewResolver(ResolverConfig{Staff: unavailableStaff{}, Logger: discardLogger()})

	set := resolver.PermissionSet(context.Background(), 42)
	assert.True(t, set.Degraded)
	assert.Empty(t, set.Keys())
	assert.True(t, set.Allows(NavModule, NavDashboard))
	assert.True(t, set.Allows(NavModule, NavProfile))
	assert.False(t, set.Allows(NavModule, NavStaffList))
	assert.Equal(t, map[string]bool{"nav.dashboard": true, "nav.profile": true}, set.Visible())
}

func TestPermissionSetPartialSources(t *testing.T) {
	store := NewMemoryStore()
	store.PutStaff(StaffMember{ID: 42, RoleTypeID: roleBursar, Active: true})
	require.NoError(t, store.SetOverride(context.Background(), StaffOverride{StaffID: 42, Module: "payments", Action: "read", Allowed: true}))
	resolver := NewResolver(ResolverConfig{Staff: store, Registry: store, Defaults: unavailableDefaults{}, Overrides: store, Logger: discardLogger()})

	set := resolver.PermissionSet(context.Background(), 42)
	assert.True(t, set.Degraded)
	assert.True(t, set.Allows("payments", "read"))
}

func TestPermissionSetUnknownOrInactiveStaff(t *testing.T) {
	f := newFixture(t)
	f.store.PutStaff(StaffMember{ID: 5, RoleTypeID: roleBursar, Active: false})
	f.roleDefault(t, roleBursar, "payments", "read", true)

	for _, id := range []int64{0, 5, 404} {
		set := f.resolver.PermissionSet(context.Background(), id)
		assert.Empty(t, set.Granted, id)
		assert.False(t, set.Degraded, id)
		assert.False(t, set.Allows(NavModule, NavDashboard), id)
	}
}
