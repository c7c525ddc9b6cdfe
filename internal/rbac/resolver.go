package rbac

import (
	"context"
	"errors"
	"log/slog"
)

// Tier names the step of the resolution chain that produced a decision.
type Tier string

const (
	TierInvalid     Tier = "invalid"
	TierStaff       Tier = "staff"
	TierSuperAdmin  Tier = "superadmin"
	TierAdminGate   Tier = "admin_gate"
	TierOverride    Tier = "override"
	TierRoleDefault Tier = "role_default"
	TierDefaultDeny Tier = "default_deny"
)

// Decision is the outcome of a single permission check.
type Decision struct {
	Allowed  bool
	Tier     Tier
	Degraded []Tier
}

// DecisionRecorder receives resolver telemetry. observability.Metrics implements it.
type DecisionRecorder interface {
	ObserveDecision(tier string, allowed bool)
	ObserveDegraded(tier string)
}

// Authorizer is what request handling code depends on.
type Authorizer interface {
	HasPermission(ctx context.Context, staffID int64, module, action string) bool
	PermissionSet(ctx context.Context, staffID int64) PermissionSet
	EditableTabsForStudent(ctx context.Context, staffID int64) []string
}

// ResolverConfig wires the lookup sources into a Resolver.
type ResolverConfig struct {
	Staff     StaffDirectory
	Registry  Registry
	Defaults  RoleDefaults
	Overrides Overrides
	// AdminRoleTypeID is the distinguished administrator role type. Zero disables it.
	AdminRoleTypeID int64
	Logger          *slog.Logger
	Metrics         DecisionRecorder
}

// Resolver answers "may staff S perform action A on module M?".
// It holds no per-staff state; every call reads the sources afresh.
type Resolver struct {
	staff       StaffDirectory
	registry    Registry
	defaults    RoleDefaults
	overrides   Overrides
	adminRoleID int64
	logger      *slog.Logger
	metrics     DecisionRecorder
}

var _ Authorizer = (*Resolver)(nil)

// NewResolver constructs a Resolver. Nil sources behave as unavailable.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		staff:       cfg.Staff,
		registry:    cfg.Registry,
		defaults:    cfg.Defaults,
		overrides:   cfg.Overrides,
		adminRoleID: cfg.AdminRoleTypeID,
		logger:      logger.With(slog.String("component", "rbac.resolver")),
		metrics:     cfg.Metrics,
	}
}

// HasPermission reports whether the staff member may perform action on module.
// It never fails: store errors resolve to a deny and are logged.
func (r *Resolver) HasPermission(ctx context.Context, staffID int64, module, action string) bool {
	decision, err := r.Check(ctx, staffID, module, action)
	if err != nil {
		r.logger.ErrorContext(ctx, "permission check failed",
			slog.Int64("staff_id", staffID),
			slog.String("module", module),
			slog.String("action", action),
			slog.String("tier", string(decision.Tier)),
			slog.Any("error", err),
		)
		return false
	}
	return decision.Allowed
}

// Check runs the resolution chain: SuperAdmin bypass, admin gate, individual
// override, role default, default deny. Sources that are unavailable are
// skipped; any other store error is returned with a deny decision.
func (r *Resolver) Check(ctx context.Context, staffID int64, module, action string) (Decision, error) {
	module, action = normalize(module), normalize(action)
	if staffID <= 0 || module == "" || action == "" {
		return r.decide(Decision{Tier: TierInvalid}), nil
	}

	staff := r.lookupStaff(ctx, staffID)
	switch staff.Status {
	case StatusFound:
	case StatusNotFound:
		return r.decide(Decision{Tier: TierStaff}), nil
	case StatusUnavailable:
		r.degraded(ctx, TierStaff, staffID, module, action, staff.Err)
		return r.decide(Decision{Tier: TierStaff, Degraded: []Tier{TierStaff}}), nil
	default:
		return r.decide(Decision{Tier: TierStaff}), staff.Err
	}
	member := staff.Value
	if member.IsSuperAdmin {
		return r.decide(Decision{Allowed: true, Tier: TierSuperAdmin}), nil
	}
	if !member.Active {
		return r.decide(Decision{Tier: TierStaff}), nil
	}

	var degraded []Tier

	def := r.lookupDefinition(ctx, module, action)
	switch def.Status {
	case StatusFound:
		if def.Value.Active && def.Value.RequiresAdminRole {
			if !r.adminCapable(member) {
				return r.decide(Decision{Tier: TierAdminGate, Degraded: degraded}), nil
			}
			if IsRestrictedAdminAction(action) {
				return r.decide(Decision{Allowed: member.IsSuperAdmin, Tier: TierAdminGate, Degraded: degraded}), nil
			}
		}
	case StatusNotFound:
	case StatusUnavailable:
		r.degraded(ctx, TierAdminGate, staffID, module, action, def.Err)
		degraded = append(degraded, TierAdminGate)
	default:
		return r.decide(Decision{Tier: TierAdminGate, Degraded: degraded}), def.Err
	}

	override := r.lookupOverride(ctx, staffID, module, action)
	switch override.Status {
	case StatusFound:
		return r.decide(Decision{Allowed: override.Value.Allowed, Tier: TierOverride, Degraded: degraded}), nil
	case StatusNotFound:
	case StatusUnavailable:
		r.degraded(ctx, TierOverride, staffID, module, action, override.Err)
		degraded = append(degraded, TierOverride)
	default:
		return r.decide(Decision{Tier: TierOverride, Degraded: degraded}), override.Err
	}

	roleDefault := r.lookupRoleDefault(ctx, member.RoleTypeID, module, action)
	switch roleDefault.Status {
	case StatusFound:
		return r.decide(Decision{Allowed: roleDefault.Value.Allowed, Tier: TierRoleDefault, Degraded: degraded}), nil
	case StatusNotFound:
	case StatusUnavailable:
		r.degraded(ctx, TierRoleDefault, staffID, module, action, roleDefault.Err)
		degraded = append(degraded, TierRoleDefault)
	default:
		return r.decide(Decision{Tier: TierRoleDefault, Degraded: degraded}), roleDefault.Err
	}

	return r.decide(Decision{Tier: TierDefaultDeny, Degraded: degraded}), nil
}

// IsAdminCapable reports whether the staff member holds an admin role.
func (r *Resolver) IsAdminCapable(member StaffMember) bool {
	return r.adminCapable(member)
}

func (r *Resolver) adminCapable(member StaffMember) bool {
	if member.IsAdminRole {
		return true
	}
	return r.adminRoleID != 0 && member.RoleTypeID == r.adminRoleID
}

func (r *Resolver) decide(d Decision) Decision {
	if r.metrics != nil {
		r.metrics.ObserveDecision(string(d.Tier), d.Allowed)
	}
	return d
}

func (r *Resolver) degraded(ctx context.Context, tier Tier, staffID int64, module, action string, err error) {
	if r.metrics != nil {
		r.metrics.ObserveDegraded(string(tier))
	}
	attrs := []any{
		slog.String("tier", string(tier)),
		slog.Int64("staff_id", staffID),
		slog.Any("error", err),
	}
	if module != "" {
		attrs = append(attrs, slog.String("module", module), slog.String("action", action))
	}
	r.logger.WarnContext(ctx, "permission source unavailable, skipping tier", attrs...)
}

func (r *Resolver) lookupStaff(ctx context.Context, staffID int64) Lookup[StaffMember] {
	if r.staff == nil {
		return Unavailable[StaffMember](errors.New("rbac: staff directory not configured"))
	}
	return r.staff.GetStaff(ctx, staffID)
}

func (r *Resolver) lookupDefinition(ctx context.Context, module, action string) Lookup[PermissionDefinition] {
	if r.registry == nil {
		return Unavailable[PermissionDefinition](errors.New("rbac: registry not configured"))
	}
	return r.registry.GetDefinition(ctx, module, action)
}

func (r *Resolver) lookupOverride(ctx context.Context, staffID int64, module, action string) Lookup[StaffOverride] {
	if r.overrides == nil {
		return Unavailable[StaffOverride](errors.New("rbac: override store not configured"))
	}
	return r.overrides.GetOverride(ctx, staffID, module, action)
}

func (r *Resolver) lookupRoleDefault(ctx context.Context, roleTypeID int64, module, action string) Lookup[RoleDefault] {
	if r.defaults == nil {
		return Unavailable[RoleDefault](errors.New("rbac: role default store not configured"))
	}
	return r.defaults.GetRoleDefault(ctx, roleTypeID, module, action)
}
