package rbac

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	platformdb "github.com/studentdesk/studentdesk/internal/platform/db"
)

// PGStore reads and writes the permission tables in PostgreSQL.
type PGStore struct {
	db   platformdb.DBTX
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore backed by the pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool, pool: pool}
}

var _ Store = (*PGStore)(nil)

// WithTx runs fn against a transaction-bound copy of the store.
func (s *PGStore) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	if s.pool == nil {
		return fn(ctx, s)
	}
	return platformdb.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGStore{db: tx, pool: nil})
	})
}

const definitionColumns = `module, action, description, is_active, requires_admin_role`

func scanDefinition(row pgx.Row) (PermissionDefinition, error) {
	var def PermissionDefinition
	var active, requiresAdmin string
	if err := row.Scan(&def.Module, &def.Action, &def.Description, &active, &requiresAdmin); err != nil {
		return PermissionDefinition{}, err
	}
	def.Active = Flag(active).Bool()
	def.RequiresAdminRole = Flag(requiresAdmin).Bool()
	return def, nil
}

// GetDefinition fetches one registry entry.
func (s *PGStore) GetDefinition(ctx context.Context, module, action string) Lookup[PermissionDefinition] {
	row := s.db.QueryRow(ctx, `SELECT `+definitionColumns+` FROM permission_definitions WHERE module = $1 AND action = $2`, normalize(module), normalize(action))
	def, err := scanDefinition(row)
	if err != nil {
		return LookupFromError[PermissionDefinition]("get definition", err)
	}
	return Found(def)
}

// ActiveDefinitions lists every active registry entry.
func (s *PGStore) ActiveDefinitions(ctx context.Context) Lookup[[]PermissionDefinition] {
	rows, err := s.db.Query(ctx, `SELECT `+definitionColumns+` FROM permission_definitions WHERE is_active = 'Y' ORDER BY module, action`)
	if err != nil {
		return LookupFromError[[]PermissionDefinition]("list definitions", err)
	}
	defer rows.Close()
	defs := make([]PermissionDefinition, 0)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return LookupFromError[[]PermissionDefinition]("scan definition", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return LookupFromError[[]PermissionDefinition]("list definitions", err)
	}
	return Found(defs)
}

// UpsertDefinition inserts or refreshes a registry entry.
func (s *PGStore) UpsertDefinition(ctx context.Context, def PermissionDefinition) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO permission_definitions (module, action, description, is_active, requires_admin_role, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (module, action) DO UPDATE
			SET description = EXCLUDED.description,
			    is_active = EXCLUDED.is_active,
			    requires_admin_role = EXCLUDED.requires_admin_role,
			    updated_at = NOW()`,
		normalize(def.Module), normalize(def.Action), def.Description,
		string(FlagOf(def.Active)), string(FlagOf(def.RequiresAdminRole)),
	)
	return writeError("upsert definition", err)
}

// GetRoleDefault fetches one role default.
func (s *PGStore) GetRoleDefault(ctx context.Context, roleTypeID int64, module, action string) Lookup[RoleDefault] {
	def := RoleDefault{RoleTypeID: roleTypeID}
	var allowed string
	err := s.db.QueryRow(ctx, `SELECT module, action, allowed FROM role_permission_defaults WHERE role_type_id = $1 AND module = $2 AND action = $3`,
		roleTypeID, normalize(module), normalize(action)).Scan(&def.Module, &def.Action, &allowed)
	if err != nil {
		return LookupFromError[RoleDefault]("get role default", err)
	}
	def.Allowed = Flag(allowed).Bool()
	return Found(def)
}

// RoleDefaults lists every default of a role type.
func (s *PGStore) RoleDefaults(ctx context.Context, roleTypeID int64) Lookup[[]RoleDefault] {
	rows, err := s.db.Query(ctx, `SELECT module, action, allowed FROM role_permission_defaults WHERE role_type_id = $1 ORDER BY module, action`, roleTypeID)
	if err != nil {
		return LookupFromError[[]RoleDefault]("list role defaults", err)
	}
	defer rows.Close()
	defaults := make([]RoleDefault, 0)
	for rows.Next() {
		def := RoleDefault{RoleTypeID: roleTypeID}
		var allowed string
		if err := rows.Scan(&def.Module, &def.Action, &allowed); err != nil {
			return LookupFromError[[]RoleDefault]("scan role default", err)
		}
		def.Allowed = Flag(allowed).Bool()
		defaults = append(defaults, def)
	}
	if err := rows.Err(); err != nil {
		return LookupFromError[[]RoleDefault]("list role defaults", err)
	}
	return Found(defaults)
}

// SetRoleDefault upserts a role default.
func (s *PGStore) SetRoleDefault(ctx context.Context, def RoleDefault) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO role_permission_defaults (role_type_id, module, action, allowed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role_type_id, module, action) DO UPDATE
			SET allowed = EXCLUDED.allowed`,
		def.RoleTypeID, normalize(def.Module), normalize(def.Action), string(FlagOf(def.Allowed)),
	)
	return writeError("set role default", err)
}

// RemoveRoleDefault deletes a role default. Returns ErrNotFound if nothing was deleted.
func (s *PGStore) RemoveRoleDefault(ctx context.Context, roleTypeID int64, module, action string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM role_permission_defaults WHERE role_type_id = $1 AND module = $2 AND action = $3`,
		roleTypeID, normalize(module), normalize(action))
	if err != nil {
		return writeError("remove role default", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const overrideColumns = `staff_id, module, action, allowed, COALESCE(updated_by, 0), updated_at`

func scanOverride(row pgx.Row) (StaffOverride, error) {
	var o StaffOverride
	var allowed string
	var updatedAt *time.Time
	if err := row.Scan(&o.StaffID, &o.Module, &o.Action, &allowed, &o.UpdatedBy, &updatedAt); err != nil {
		return StaffOverride{}, err
	}
	o.Allowed = Flag(allowed).Bool()
	if updatedAt != nil {
		o.UpdatedAt = updatedAt.UTC()
	}
	return o, nil
}

// GetOverride fetches one individual override.
func (s *PGStore) GetOverride(ctx context.Context, staffID int64, module, action string) Lookup[StaffOverride] {
	row := s.db.QueryRow(ctx, `SELECT `+overrideColumns+` FROM staff_permission_overrides WHERE staff_id = $1 AND module = $2 AND action = $3`,
		staffID, normalize(module), normalize(action))
	o, err := scanOverride(row)
	if err != nil {
		return LookupFromError[StaffOverride]("get override", err)
	}
	return Found(o)
}

// Overrides lists every override of a staff member.
func (s *PGStore) Overrides(ctx context.Context, staffID int64) Lookup[[]StaffOverride] {
	rows, err := s.db.Query(ctx, `SELECT `+overrideColumns+` FROM staff_permission_overrides WHERE staff_id = $1 ORDER BY module, action`, staffID)
	if err != nil {
		return LookupFromError[[]StaffOverride]("list overrides", err)
	}
	defer rows.Close()
	overrides := make([]StaffOverride, 0)
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return LookupFromError[[]StaffOverride]("scan override", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return LookupFromError[[]StaffOverride]("list overrides", err)
	}
	return Found(overrides)
}

// SetOverride upserts the single override row for (staff, module, action).
func (s *PGStore) SetOverride(ctx context.Context, o StaffOverride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO staff_permission_overrides (staff_id, module, action, allowed, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0), NOW())
		ON CONFLICT (staff_id, module, action) DO UPDATE
			SET allowed = EXCLUDED.allowed,
			    updated_by = EXCLUDED.updated_by,
			    updated_at = NOW()`,
		o.StaffID, normalize(o.Module), normalize(o.Action), string(FlagOf(o.Allowed)), o.UpdatedBy,
	)
	return writeError("set override", err)
}

// RemoveOverride deletes an override, reverting the staff member to the role default.
func (s *PGStore) RemoveOverride(ctx context.Context, staffID int64, module, action string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM staff_permission_overrides WHERE staff_id = $1 AND module = $2 AND action = $3`,
		staffID, normalize(module), normalize(action))
	if err != nil {
		return writeError("remove override", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneInactiveOverrides removes the overrides of deactivated staff.
func (s *PGStore) PruneInactiveOverrides(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM staff_permission_overrides o
		USING staff s
		WHERE s.id = o.staff_id AND s.is_active = FALSE`)
	if err != nil {
		return 0, writeError("prune overrides", err)
	}
	return tag.RowsAffected(), nil
}
