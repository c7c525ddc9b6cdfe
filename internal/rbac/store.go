package rbac

import "context"

// StaffDirectory resolves staff identities.
type StaffDirectory interface {
	GetStaff(ctx context.Context, staffID int64) Lookup[StaffMember]
}

// Registry resolves permission definitions.
type Registry interface {
	GetDefinition(ctx context.Context, module, action string) Lookup[PermissionDefinition]
	ActiveDefinitions(ctx context.Context) Lookup[[]PermissionDefinition]
}

// RoleDefaults resolves role-type default grants.
type RoleDefaults interface {
	GetRoleDefault(ctx context.Context, roleTypeID int64, module, action string) Lookup[RoleDefault]
	RoleDefaults(ctx context.Context, roleTypeID int64) Lookup[[]RoleDefault]
}

// Overrides resolves individual staff grants.
type Overrides interface {
	GetOverride(ctx context.Context, staffID int64, module, action string) Lookup[StaffOverride]
	Overrides(ctx context.Context, staffID int64) Lookup[[]StaffOverride]
}

// OverrideWriter administers individual grants.
type OverrideWriter interface {
	SetOverride(ctx context.Context, override StaffOverride) error
	RemoveOverride(ctx context.Context, staffID int64, module, action string) error
	PruneInactiveOverrides(ctx context.Context) (int64, error)
}

// RoleDefaultWriter administers role-type defaults.
type RoleDefaultWriter interface {
	SetRoleDefault(ctx context.Context, def RoleDefault) error
	RemoveRoleDefault(ctx context.Context, roleTypeID int64, module, action string) error
}

// RegistryWriter seeds permission definitions.
type RegistryWriter interface {
	UpsertDefinition(ctx context.Context, def PermissionDefinition) error
}

// Store is the full read/write surface the admin Service needs.
type Store interface {
	Registry
	RoleDefaults
	Overrides
	OverrideWriter
	RoleDefaultWriter
	RegistryWriter
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
}
