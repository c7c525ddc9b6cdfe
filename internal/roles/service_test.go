package roles

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentdesk/studentdesk/internal/rbac"
)

type memoryRepo struct {
	roles []RoleType
}

func (m *memoryRepo) ListRoles(context.Context) ([]RoleType, error) {
	return m.roles, nil
}

func (m *memoryRepo) FindByID(_ context.Context, id int64) (RoleType, error) {
	for _, role := range m.roles {
		if role.ID == id {
			return role, nil
		}
	}
	return RoleType{}, ErrNotFound
}

func (m *memoryRepo) Create(_ context.Context, input CreateInput) (RoleType, error) {
	for _, role := range m.roles {
		if role.Name == input.Name {
			return RoleType{}, ErrDuplicateName
		}
	}
	role := RoleType{ID: int64(len(m.roles) + 1), Name: input.Name, Description: input.Description, IsAdmin: input.IsAdmin}
	m.roles = append(m.roles, role)
	return role, nil
}

type unavailableDefaults struct{}

func (unavailableDefaults) GetRoleDefault(context.Context, int64, string, string) rbac.Lookup[rbac.RoleDefault] {
	return rbac.Unavailable[rbac.RoleDefault](nil)
}

func (unavailableDefaults) RoleDefaults(context.Context, int64) rbac.Lookup[[]rbac.RoleDefault] {
	return rbac.Unavailable[[]rbac.RoleDefault](nil)
}

func newService(t *testing.T, defaults rbac.RoleDefaults) (*Service, *rbac.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := rbac.NewMemoryStore()
	for _, def := range rbac.DefaultCatalog() {
		require.NoError(t, store.UpsertDefinition(ctx, def))
	}
	store.PutStaff(rbac.StaffMember{ID: 1, RoleTypeID: 1, IsSuperAdmin: true, IsAdminRole: true, Active: true})
	store.PutStaff(rbac.StaffMember{ID: 10, RoleTypeID: 1, IsAdminRole: true, Active: true})
	require.NoError(t, store.SetRoleDefault(ctx, rbac.RoleDefault{RoleTypeID: 1, Module: "permissions", Action: "manage_role_defaults", Allowed: true}))
	require.NoError(t, store.SetRoleDefault(ctx, rbac.RoleDefault{RoleTypeID: 7, Module: "payments", Action: "read", Allowed: true}))
	require.NoError(t, store.SetRoleDefault(ctx, rbac.RoleDefault{RoleTypeID: 7, Module: "payments", Action: "write", Allowed: true}))
	require.NoError(t, store.SetRoleDefault(ctx, rbac.RoleDefault{RoleTypeID: 7, Module: "students", Action: "delete", Allowed: false}))
	if defaults == nil {
		defaults = store
	}
	resolver := rbac.NewResolver(rbac.ResolverConfig{Staff: store, Registry: store, Defaults: store, Overrides: store, Logger: logger})
	repo := &memoryRepo{roles: []RoleType{{ID: 1, Name: "Administrator", IsAdmin: true}, {ID: 7, Name: "Bursar"}}}
	return NewService(repo, defaults, resolver, nil, logger), store
}

func TestListRolesCountsGrantedDefaults(t *testing.T) {
	service, _ := newService(t, nil)

	roles, err := service.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, 1, roles[0].GrantedDefaults)
	assert.Equal(t, 2, roles[1].GrantedDefaults)
}

func TestListRolesWithUnavailableDefaults(t *testing.T) {
	service, _ := newService(t, unavailableDefaults{})

	roles, err := service.ListRoles(context.Background())
	require.NoError(t, err)
	for _, role := range roles {
		assert.Zero(t, role.GrantedDefaults)
	}

	_, err = service.Get(context.Background(), 7)
	assert.ErrorIs(t, err, rbac.ErrStoreUnavailable)
}

func TestGetRole(t *testing.T) {
	service, _ := newService(t, nil)

	detail, err := service.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Bursar", detail.Name)
	assert.Len(t, detail.Defaults, 3)

	_, err = service.Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRoleRequiresSuperAdmin(t *testing.T) {
	service, _ := newService(t, nil)
	ctx := context.Background()

	_, err := service.Create(ctx, 10, CreateInput{Name: "Registrar"})
	assert.ErrorIs(t, err, ErrForbidden)

	role, err := service.Create(ctx, 1, CreateInput{Name: "  Registrar "})
	require.NoError(t, err)
	assert.Equal(t, "Registrar", role.Name)

	_, err = service.Create(ctx, 1, CreateInput{Name: ""})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
