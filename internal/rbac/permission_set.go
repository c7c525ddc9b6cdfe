package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sort"
)

// PermissionSet is the per-staff map navigation code gates on. Granted holds
// module.action keys; an explicit false means an override revoked the entry.
// Fallback is the minimal navigation set to fall back to when Degraded.
type PermissionSet struct {
	Granted  map[string]bool `json:"granted"`
	Fallback map[string]bool `json:"fallback"`
	Degraded bool            `json:"degraded"`
}

func newPermissionSet() PermissionSet {
	fallback := make(map[string]bool)
	for _, key := range SafeFallbackNav() {
		fallback[key] = true
	}
	return PermissionSet{Granted: make(map[string]bool), Fallback: fallback}
}

// Allows reports whether module.action is granted. While degraded the safe
// fallback entries are honoured too.
func (p PermissionSet) Allows(module, action string) bool {
	return p.AllowsKey(Key(module, action))
}

// AllowsKey is Allows for a prebuilt module.action key.
func (p PermissionSet) AllowsKey(key string) bool {
	if p.Granted[key] {
		return true
	}
	return p.Degraded && p.Fallback[key]
}

// Visible returns every key the UI may show, fallback entries included while degraded.
func (p PermissionSet) Visible() map[string]bool {
	out := make(map[string]bool, len(p.Granted))
	for k, ok := range p.Granted {
		if ok {
			out[k] = true
		}
	}
	if p.Degraded {
		for k, ok := range p.Fallback {
			if ok {
				out[k] = true
			}
		}
	}
	return out
}

// Keys returns the granted keys in sorted order.
func (p PermissionSet) Keys() []string {
	keys := make([]string, 0, len(p.Granted))
	for k, ok := range p.Granted {
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// PermissionSet computes every permission the staff member should see as
// granted, in one pass over the sources instead of one check per action.
func (r *Resolver) PermissionSet(ctx context.Context, staffID int64) PermissionSet {
	set := newPermissionSet()
	if staffID <= 0 {
		return set
	}

	staff := r.lookupStaff(ctx, staffID)
	switch staff.Status {
	case StatusFound:
	case StatusNotFound:
		return set
	default:
		r.setFailure(ctx, &set, TierStaff, staffID, staff.Status, staff.Err)
		return set
	}
	member := staff.Value
	if member.IsSuperAdmin {
		r.superAdminSet(ctx, &set, staffID)
		return set
	}
	if !member.Active {
		return set
	}

	defaults := r.roleDefaultsFor(ctx, member.RoleTypeID)
	switch defaults.Status {
	case StatusFound:
		for _, d := range defaults.Value {
			if d.Allowed {
				set.Granted[d.Key()] = true
			}
		}
	case StatusNotFound:
	default:
		r.setFailure(ctx, &set, TierRoleDefault, staffID, defaults.Status, defaults.Err)
	}

	overrides := r.overridesFor(ctx, staffID)
	switch overrides.Status {
	case StatusFound:
		for _, o := range overrides.Value {
			set.Granted[o.Key()] = o.Allowed
		}
	case StatusNotFound:
	default:
		r.setFailure(ctx, &set, TierOverride, staffID, overrides.Status, overrides.Err)
	}

	if r.adminCapable(member) {
		for _, key := range AdminNav() {
			set.Granted[key] = true
		}
	}
	return set
}

func (r *Resolver) superAdminSet(ctx context.Context, set *PermissionSet, staffID int64) {
	var defs []PermissionDefinition
	lookup := r.activeDefinitions(ctx)
	switch lookup.Status {
	case StatusFound:
		defs = lookup.Value
	default:
		r.setFailure(ctx, set, TierAdminGate, staffID, lookup.Status, lookup.Err)
		for _, def := range DefaultCatalog() {
			if def.Active {
				defs = append(defs, def)
			}
		}
	}
	for _, def := range defs {
		set.Granted[def.Key()] = true
	}
	for _, key := range SuperAdminNav() {
		set.Granted[key] = true
	}
}

func (r *Resolver) setFailure(ctx context.Context, set *PermissionSet, tier Tier, staffID int64, status LookupStatus, err error) {
	set.Degraded = true
	if status == StatusUnavailable {
		r.degraded(ctx, tier, staffID, "", "", err)
		return
	}
	r.logger.ErrorContext(ctx, "permission set source failed",
		slog.String("tier", string(tier)),
		slog.Int64("staff_id", staffID),
		slog.Any("error", err),
	)
}

func (r *Resolver) activeDefinitions(ctx context.Context) Lookup[[]PermissionDefinition] {
	if r.registry == nil {
		return Unavailable[[]PermissionDefinition](errors.New("rbac: registry not configured"))
	}
	return r.registry.ActiveDefinitions(ctx)
}

func (r *Resolver) roleDefaultsFor(ctx context.Context, roleTypeID int64) Lookup[[]RoleDefault] {
	if r.defaults == nil {
		return Unavailable[[]RoleDefault](errors.New("rbac: role default store not configured"))
	}
	return r.defaults.RoleDefaults(ctx, roleTypeID)
}

func (r *Resolver) overridesFor(ctx context.Context, staffID int64) Lookup[[]StaffOverride] {
	if r.overrides == nil {
		return Unavailable[[]StaffOverride](errors.New("rbac: override store not configured"))
	}
	return r.overrides.Overrides(ctx, staffID)
}
