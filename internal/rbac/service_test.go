package rbac

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentdesk/studentdesk/internal/shared"
)

const (
	superAdminID int64 = 1
	adminID      int64 = 10
	bursarID     int64 = 42
)

type memoryAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
	err     error
}

func (m *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, log)
	return nil
}

func (m *memoryAudit) Recent(_ context.Context, entity, entityPrefix string, limit int) ([]shared.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []shared.AuditLog
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.entries[i]
		if e.Entity == entity && strings.HasPrefix(e.EntityID, entityPrefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

type serviceFixture struct {
	*fixture
	audit   *memoryAudit
	service *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := newFixture(t)
	audit := &memoryAudit{}
	service := NewService(ServiceConfig{
		Store:    f.store,
		Staff:    f.store,
		Resolver: f.resolver,
		Audit:    audit,
		Logger:   discardLogger(),
	})
	_, err := service.SyncRegistry(context.Background(), DefaultCatalog())
	require.NoError(t, err)

	f.staff(StaffMember{ID: superAdminID, RoleTypeID: roleAdmin, IsSuperAdmin: true, IsAdminRole: true})
	f.staff(StaffMember{ID: adminID, RoleTypeID: roleAdmin, IsAdminRole: true})
	f.staff(StaffMember{ID: bursarID, RoleTypeID: roleBursar})
	f.roleDefault(t, roleAdmin, ModulePermissions, "view", true)
	f.roleDefault(t, roleAdmin, ModulePermissions, ActionManageOverrides, true)
	f.roleDefault(t, roleAdmin, ModulePermissions, ActionManageRoleDefaults, true)
	f.roleDefault(t, roleBursar, "payments", "read", true)
	return &serviceFixture{fixture: f, audit: audit, service: service}
}

func TestServiceSetOverride(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	err := f.service.SetOverride(ctx, adminID, OverrideInput{StaffID: bursarID, Module: "Students", Action: "delete", Allowed: true})
	require.NoError(t, err)

	got := f.store.GetOverride(ctx, bursarID, "students", "delete")
	require.True(t, got.IsFound())
	assert.True(t, got.Value.Allowed)
	assert.Equal(t, adminID, got.Value.UpdatedBy)
	assert.True(t, f.resolver.HasPermission(ctx, bursarID, "students", "delete"))

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, "override.set", entry.Action)
	assert.Equal(t, "42:students.delete", entry.EntityID)
	assert.Equal(t, adminID, entry.ActorID)
	assert.Equal(t, true, entry.Meta["allowed"])
}

func TestServiceSetOverrideValidation(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.SetOverride(context.Background(), adminID, OverrideInput{StaffID: bursarID, Action: "delete"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, f.audit.entries)
}

func TestServiceSetOverrideRequiresManagePermission(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.SetOverride(context.Background(), bursarID, OverrideInput{StaffID: bursarID, Module: "payments", Action: "refund", Allowed: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, f.store.GetOverride(context.Background(), bursarID, "payments", "refund").IsFound())
}

func TestServiceSetOverrideAdminGatedTarget(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	input := OverrideInput{StaffID: adminID, Module: "staff", Action: ActionCreateAdminAccounts, Allowed: true}

	err := f.service.SetOverride(ctx, adminID, input)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.service.SetOverride(ctx, superAdminID, input))
}

func TestServiceSetOverrideUnknownPermission(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	err := f.service.SetOverride(ctx, adminID, OverrideInput{StaffID: bursarID, Module: "students", Action: "teleport", Allowed: true})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.service.SetOverride(ctx, adminID, OverrideInput{StaffID: bursarID, Module: NavModule, Action: NavReports, Allowed: true})
	require.NoError(t, err)
	assert.True(t, f.resolver.PermissionSet(ctx, bursarID).Allows(NavModule, NavReports))
}

func TestServiceSetOverrideUnknownStaff(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.SetOverride(context.Background(), adminID, OverrideInput{StaffID: 404, Module: "students", Action: "view", Allowed: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceRemoveOverride(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.override(t, bursarID, "payments", "read", false)
	require.False(t, f.resolver.HasPermission(ctx, bursarID, "payments", "read"))

	require.NoError(t, f.service.RemoveOverride(ctx, adminID, bursarID, "payments", "read"))
	assert.True(t, f.resolver.HasPermission(ctx, bursarID, "payments", "read"), "role default applies again")

	err := f.service.RemoveOverride(ctx, adminID, bursarID, "payments", "read")
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "override.remove", f.audit.entries[0].Action)
}

func TestServiceRoleDefaultsAreSuperAdminOnly(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	input := RoleDefaultInput{RoleTypeID: roleBursar, Module: "payments", Action: "write", Allowed: true}

	err := f.service.SetRoleDefault(ctx, adminID, input)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.service.SetRoleDefault(ctx, superAdminID, input))
	assert.True(t, f.resolver.HasPermission(ctx, bursarID, "payments", "write"))

	require.NoError(t, f.service.RemoveRoleDefault(ctx, superAdminID, roleBursar, "payments", "write"))
	assert.False(t, f.resolver.HasPermission(ctx, bursarID, "payments", "write"))

	err = f.service.RemoveRoleDefault(ctx, superAdminID, 0, "payments", "write")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestServiceAuditFailureDoesNotFailWrite(t *testing.T) {
	f := newServiceFixture(t)
	f.audit.err = errors.New("audit_logs unavailable")

	err := f.service.SetOverride(context.Background(), adminID, OverrideInput{StaffID: bursarID, Module: "students", Action: "view", Allowed: true})
	require.NoError(t, err)
	assert.True(t, f.store.GetOverride(context.Background(), bursarID, "students", "view").IsFound())
}

func TestServiceStaffPermissions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.override(t, bursarID, "students", "edit_bursar_tab", true)

	view, err := f.service.StaffPermissions(ctx, bursarID)
	require.NoError(t, err)
	assert.Equal(t, bursarID, view.Staff.ID)
	assert.False(t, view.AdminCapable)
	assert.Equal(t, []string{"bursar"}, view.EditableTabs)
	require.Len(t, view.Overrides, 1)
	assert.True(t, view.Effective.Allows("payments", "read"))

	_, err = f.service.StaffPermissions(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceSyncRegistry(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(ServiceConfig{Store: store, Logger: discardLogger()})
	ctx := context.Background()

	n, err := service.SyncRegistry(ctx, DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCatalog()), n)

	defs, err := service.ListDefinitions(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, n)

	_, err = service.SyncRegistry(ctx, []PermissionDefinition{{Module: "students"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestServicePruneInactiveOverrides(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.PutStaff(StaffMember{ID: 77, RoleTypeID: roleBursar, Active: false})
	f.override(t, 77, "payments", "refund", true)
	f.override(t, bursarID, "payments", "refund", true)

	removed, err := f.service.PruneInactiveOverrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.True(t, f.store.GetOverride(ctx, bursarID, "payments", "refund").IsFound())
}

func TestServiceOverrideHistory(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.staff(StaffMember{ID: 4, RoleTypeID: roleBursar})
	require.NoError(t, f.service.SetOverride(ctx, adminID, OverrideInput{StaffID: bursarID, Module: "students", Action: "view", Allowed: true}))
	require.NoError(t, f.service.SetOverride(ctx, adminID, OverrideInput{StaffID: 4, Module: "students", Action: "view", Allowed: true}))
	require.NoError(t, f.service.RemoveOverride(ctx, adminID, bursarID, "students", "view"))

	entries, err := f.service.OverrideHistory(ctx, bursarID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "override.remove", entries[0].Action)
	assert.Equal(t, "override.set", entries[1].Action)

	f.audit.err = errors.New("audit_logs unavailable")
	_, err = f.service.OverrideHistory(ctx, bursarID, 10)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = f.service.OverrideHistory(ctx, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
