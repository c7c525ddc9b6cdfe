package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/studentdesk/studentdesk/internal/shared"
)

// AuditRecorder persists audit entries. shared.AuditLogger implements it.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditReader lists recent audit entries. shared.AuditLogger implements it.
type AuditReader interface {
	Recent(ctx context.Context, entity, entityPrefix string, limit int) ([]shared.AuditLog, error)
}

const overrideEntity = "staff_permission_override"

// OverrideInput is the payload for granting or revoking an individual permission.
type OverrideInput struct {
	StaffID int64  `json:"staff_id" validate:"required,gt=0"`
	Module  string `json:"module" validate:"required,max=64"`
	Action  string `json:"action" validate:"required,max=64"`
	Allowed bool   `json:"allowed"`
}

// RoleDefaultInput is the payload for changing a role-type default.
type RoleDefaultInput struct {
	RoleTypeID int64  `json:"role_type_id" validate:"required,gt=0"`
	Module     string `json:"module" validate:"required,max=64"`
	Action     string `json:"action" validate:"required,max=64"`
	Allowed    bool   `json:"allowed"`
}

// StaffPermissions is the admin view of one staff member's access.
type StaffPermissions struct {
	Staff        StaffMember     `json:"staff"`
	AdminCapable bool            `json:"admin_capable"`
	Effective    PermissionSet   `json:"effective"`
	Overrides    []StaffOverride `json:"overrides"`
	EditableTabs []string        `json:"editable_tabs"`
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store    Store
	Staff    StaffDirectory
	Resolver *Resolver
	Audit    AuditRecorder
	Logger   *slog.Logger
}

// Service administers overrides, role defaults and the registry.
type Service struct {
	store     Store
	staff     StaffDirectory
	resolver  *Resolver
	audit     AuditRecorder
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     cfg.Store,
		staff:     cfg.Staff,
		resolver:  cfg.Resolver,
		audit:     cfg.Audit,
		logger:    logger.With(slog.String("component", "rbac.service")),
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetOverride grants or revokes a single permission for a staff member.
func (s *Service) SetOverride(ctx context.Context, actorID int64, input OverrideInput) error {
	if err := s.validate(input); err != nil {
		return err
	}
	module, action := normalize(input.Module), normalize(input.Action)
	if err := s.authorizeOverride(ctx, actorID, module, action); err != nil {
		return err
	}
	if err := s.requireStaff(ctx, input.StaffID); err != nil {
		return err
	}
	override := StaffOverride{
		StaffID:   input.StaffID,
		Module:    module,
		Action:    action,
		Allowed:   input.Allowed,
		UpdatedBy: actorID,
	}
	if err := s.store.SetOverride(ctx, override); err != nil {
		return err
	}
	s.record(ctx, actorID, "override.set", overrideEntity, overrideEntityID(input.StaffID, module, action), map[string]any{
		"allowed": input.Allowed,
	})
	return nil
}

// RemoveOverride deletes an individual override so the role default applies again.
func (s *Service) RemoveOverride(ctx context.Context, actorID, staffID int64, module, action string) error {
	module, action = normalize(module), normalize(action)
	if staffID <= 0 || module == "" || action == "" {
		return fmt.Errorf("%w: staff, module and action are required", ErrInvalidInput)
	}
	if err := s.authorizeOverride(ctx, actorID, module, action); err != nil {
		return err
	}
	if err := s.store.RemoveOverride(ctx, staffID, module, action); err != nil {
		return err
	}
	s.record(ctx, actorID, "override.remove", overrideEntity, overrideEntityID(staffID, module, action), nil)
	return nil
}

// SetRoleDefault changes the default grant of a role type.
func (s *Service) SetRoleDefault(ctx context.Context, actorID int64, input RoleDefaultInput) error {
	if err := s.validate(input); err != nil {
		return err
	}
	module, action := normalize(input.Module), normalize(input.Action)
	if err := s.authorizeRoleDefault(ctx, actorID, module, action); err != nil {
		return err
	}
	def := RoleDefault{RoleTypeID: input.RoleTypeID, Module: module, Action: action, Allowed: input.Allowed}
	if err := s.store.SetRoleDefault(ctx, def); err != nil {
		return err
	}
	s.record(ctx, actorID, "role_default.set", "role_permission_default", roleEntityID(input.RoleTypeID, module, action), map[string]any{
		"allowed": input.Allowed,
	})
	return nil
}

// RemoveRoleDefault deletes a role default; the permission then falls to default deny.
func (s *Service) RemoveRoleDefault(ctx context.Context, actorID, roleTypeID int64, module, action string) error {
	module, action = normalize(module), normalize(action)
	if roleTypeID <= 0 || module == "" || action == "" {
		return fmt.Errorf("%w: role type, module and action are required", ErrInvalidInput)
	}
	if err := s.authorizeRoleDefault(ctx, actorID, module, action); err != nil {
		return err
	}
	if err := s.store.RemoveRoleDefault(ctx, roleTypeID, module, action); err != nil {
		return err
	}
	s.record(ctx, actorID, "role_default.remove", "role_permission_default", roleEntityID(roleTypeID, module, action), nil)
	return nil
}

// ListDefinitions returns the active registry.
func (s *Service) ListDefinitions(ctx context.Context) ([]PermissionDefinition, error) {
	lookup := s.store.ActiveDefinitions(ctx)
	switch lookup.Status {
	case StatusFound:
		return lookup.Value, nil
	case StatusNotFound:
		return []PermissionDefinition{}, nil
	default:
		return nil, lookup.Err
	}
}

// RoleDefaults lists the defaults of a role type.
func (s *Service) RoleDefaults(ctx context.Context, roleTypeID int64) ([]RoleDefault, error) {
	lookup := s.store.RoleDefaults(ctx, roleTypeID)
	switch lookup.Status {
	case StatusFound:
		return lookup.Value, nil
	case StatusNotFound:
		return []RoleDefault{}, nil
	default:
		return nil, lookup.Err
	}
}

// StaffPermissions assembles the effective permissions and overrides of a staff member.
func (s *Service) StaffPermissions(ctx context.Context, staffID int64) (StaffPermissions, error) {
	if staffID <= 0 {
		return StaffPermissions{}, fmt.Errorf("%w: staff id", ErrInvalidInput)
	}
	member, err := s.lookupStaff(ctx, staffID)
	if err != nil {
		return StaffPermissions{}, err
	}
	overrides := s.store.Overrides(ctx, staffID)
	if overrides.Status != StatusFound && overrides.Status != StatusNotFound {
		return StaffPermissions{}, overrides.Err
	}
	view := StaffPermissions{
		Staff:        member,
		AdminCapable: s.resolver.IsAdminCapable(member),
		Effective:    s.resolver.PermissionSet(ctx, staffID),
		Overrides:    overrides.Value,
		EditableTabs: s.resolver.EditableTabsForStudent(ctx, staffID),
	}
	if view.Overrides == nil {
		view.Overrides = []StaffOverride{}
	}
	return view, nil
}

// OverrideHistory returns the latest override changes made to a staff
// member, newest first. It needs an audit backend that can read.
func (s *Service) OverrideHistory(ctx context.Context, staffID int64, limit int) ([]shared.AuditLog, error) {
	if staffID <= 0 {
		return nil, fmt.Errorf("%w: staff id", ErrInvalidInput)
	}
	reader, ok := s.audit.(AuditReader)
	if !ok {
		return nil, ErrStoreUnavailable
	}
	entries, err := reader.Recent(ctx, overrideEntity, strconv.FormatInt(staffID, 10)+":", limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "read override history", slog.Int64("staff_id", staffID), slog.Any("error", err))
		return nil, ErrStoreUnavailable
	}
	if entries == nil {
		entries = []shared.AuditLog{}
	}
	return entries, nil
}

// SyncRegistry upserts the definitions in one transaction and returns how many were written.
func (s *Service) SyncRegistry(ctx context.Context, defs []PermissionDefinition) (int, error) {
	for _, def := range defs {
		if normalize(def.Module) == "" || normalize(def.Action) == "" {
			return 0, fmt.Errorf("%w: definition requires module and action", ErrInvalidInput)
		}
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		for _, def := range defs {
			if err := tx.UpsertDefinition(ctx, def); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "permission registry synced", slog.Int("definitions", len(defs)))
	return len(defs), nil
}

// PruneInactiveOverrides drops the overrides held by deactivated staff.
func (s *Service) PruneInactiveOverrides(ctx context.Context) (int64, error) {
	removed, err := s.store.PruneInactiveOverrides(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "pruned overrides of inactive staff", slog.Int64("removed", removed))
	}
	return removed, nil
}

func (s *Service) validate(input any) error {
	if err := s.validator.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// authorizeOverride requires permissions.manage_overrides, plus
// permissions.manage_admin_permissions when the target is admin-gated.
func (s *Service) authorizeOverride(ctx context.Context, actorID int64, module, action string) error {
	if !s.resolver.HasPermission(ctx, actorID, ModulePermissions, ActionManageOverrides) {
		return fmt.Errorf("%w: %s.%s", ErrForbidden, ModulePermissions, ActionManageOverrides)
	}
	gated, err := s.adminGated(ctx, module, action)
	if err != nil {
		return err
	}
	if gated && !s.resolver.HasPermission(ctx, actorID, ModulePermissions, ActionManageAdminPermissions) {
		return fmt.Errorf("%w: %s.%s", ErrForbidden, ModulePermissions, ActionManageAdminPermissions)
	}
	return nil
}

func (s *Service) authorizeRoleDefault(ctx context.Context, actorID int64, module, action string) error {
	if !s.resolver.HasPermission(ctx, actorID, ModulePermissions, ActionManageRoleDefaults) {
		return fmt.Errorf("%w: %s.%s", ErrForbidden, ModulePermissions, ActionManageRoleDefaults)
	}
	_, err := s.adminGated(ctx, module, action)
	return err
}

// adminGated reports whether the target permission requires an admin role.
// Unknown registry entries are rejected, except navigation keys which live
// outside the registry.
func (s *Service) adminGated(ctx context.Context, module, action string) (bool, error) {
	lookup := s.store.GetDefinition(ctx, module, action)
	switch lookup.Status {
	case StatusFound:
		return lookup.Value.Active && lookup.Value.RequiresAdminRole, nil
	case StatusNotFound:
		if module == NavModule {
			return false, nil
		}
		return false, fmt.Errorf("%w: unknown permission %s", ErrInvalidInput, Key(module, action))
	default:
		return false, lookup.Err
	}
}

func (s *Service) requireStaff(ctx context.Context, staffID int64) error {
	_, err := s.lookupStaff(ctx, staffID)
	return err
}

func (s *Service) lookupStaff(ctx context.Context, staffID int64) (StaffMember, error) {
	if s.staff == nil {
		return StaffMember{}, ErrStoreUnavailable
	}
	lookup := s.staff.GetStaff(ctx, staffID)
	switch lookup.Status {
	case StatusFound:
		return lookup.Value, nil
	case StatusNotFound:
		return StaffMember{}, fmt.Errorf("staff %d: %w", staffID, ErrNotFound)
	default:
		return StaffMember{}, lookup.Err
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	s.logger.InfoContext(ctx, "permission change",
		slog.Int64("actor_id", actorID),
		slog.String("action", action),
		slog.String("entity_id", entityID),
	)
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", slog.String("entity_id", entityID), slog.Any("error", err))
	}
}

func overrideEntityID(staffID int64, module, action string) string {
	return strconv.FormatInt(staffID, 10) + ":" + Key(module, action)
}

func roleEntityID(roleTypeID int64, module, action string) string {
	return strconv.FormatInt(roleTypeID, 10) + ":" + Key(module, action)
}
