package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/studentdesk/studentdesk/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Authz  Authorizer
	Logger *slog.Logger

	loads singleflight.Group
}

// NewMiddleware constructs the HTTP helpers around an Authorizer.
func NewMiddleware(authz Authorizer, logger *slog.Logger) *Middleware {
	return &Middleware{Authz: authz, Logger: logger}
}

// Require ensures the current staff member may perform action on module.
func (m *Middleware) Require(module, action string) func(http.Handler) http.Handler {
	return m.RequireAll(Key(module, action))
}

// RequireAny ensures the current staff member holds at least one of the keys.
// Malformed keys never match, so a call with no valid key rejects every request.
func (m *Middleware) RequireAny(keys ...string) func(http.Handler) http.Handler {
	normalized, _ := m.parseKeys(keys)
	return m.guard(normalized, len(normalized) > 0, func(ctx context.Context, staffID int64) bool {
		for _, key := range normalized {
			if m.allows(ctx, staffID, key) {
				return true
			}
		}
		return false
	})
}

// RequireAll ensures the current staff member holds every key. A malformed key
// can never be held, so it rejects every request.
func (m *Middleware) RequireAll(keys ...string) func(http.Handler) http.Handler {
	normalized, invalid := m.parseKeys(keys)
	return m.guard(normalized, len(normalized) > 0 && len(invalid) == 0, func(ctx context.Context, staffID int64) bool {
		for _, key := range normalized {
			if !m.allows(ctx, staffID, key) {
				return false
			}
		}
		return true
	})
}

func (m *Middleware) guard(keys []string, valid bool, check func(context.Context, int64) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			staffID, ok := CurrentStaffID(r)
			if !ok || !valid {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if !check(r.Context(), staffID) {
				m.denied(r, staffID, keys)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseKeys normalizes and dedupes keys, returning the malformed ones
// separately. Malformed keys are logged once, when the route is built.
func (m *Middleware) parseKeys(keys []string) (normalized, invalid []string) {
	normalized, invalid = normalizeKeys(keys)
	if (len(invalid) > 0 || len(normalized) == 0) && m.Logger != nil {
		m.Logger.Error("permission guard has malformed keys; requests will be rejected",
			slog.Any("keys", keys),
			slog.Any("invalid", invalid),
		)
	}
	return normalized, invalid
}

// LoadPermissionSet computes the signed-in staff member's permission set once
// per request and stores it in the context. Concurrent loads for the same
// staff member share one computation.
func (m *Middleware) LoadPermissionSet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		staffID, ok := CurrentStaffID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if _, loaded := PermissionSetFromContext(r.Context()); loaded {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		v, _, _ := m.loads.Do(strconv.FormatInt(staffID, 10), func() (any, error) {
			return m.Authz.PermissionSet(context.WithoutCancel(ctx), staffID), nil
		})
		set, _ := v.(PermissionSet)
		next.ServeHTTP(w, r.WithContext(ContextWithPermissionSet(ctx, set)))
	})
}

// allows consults the request's permission set for navigation keys, which
// only exist there, and the resolver for everything else.
func (m *Middleware) allows(ctx context.Context, staffID int64, key string) bool {
	module, action, ok := SplitKey(key)
	if !ok {
		return false
	}
	if module == NavModule {
		if set, loaded := PermissionSetFromContext(ctx); loaded {
			return set.AllowsKey(key)
		}
		return m.Authz.PermissionSet(ctx, staffID).AllowsKey(key)
	}
	return m.Authz.HasPermission(ctx, staffID, module, action)
}

func (m *Middleware) denied(r *http.Request, staffID int64, keys []string) {
	if m.Logger == nil {
		return
	}
	m.Logger.InfoContext(r.Context(), "permission denied",
		slog.Int64("staff_id", staffID),
		slog.String("path", r.URL.Path),
		slog.Any("required", keys),
	)
}

type permissionSetKey struct{}

// ContextWithPermissionSet stores the set in context.
func ContextWithPermissionSet(ctx context.Context, set PermissionSet) context.Context {
	return context.WithValue(ctx, permissionSetKey{}, set)
}

// PermissionSetFromContext returns the set loaded by LoadPermissionSet.
// Concurrent requests for the same staff member share the Granted and
// Fallback maps; treat them as read-only.
func PermissionSetFromContext(ctx context.Context) (PermissionSet, bool) {
	set, ok := ctx.Value(permissionSetKey{}).(PermissionSet)
	return set, ok
}

// CurrentStaffID reads the signed-in staff id from the session.
func CurrentStaffID(r *http.Request) (int64, bool) {
	return shared.SessionFromContext(r.Context()).StaffID()
}

func normalizeKeys(keys []string) (normalized, invalid []string) {
	seen := make(map[string]struct{}, len(keys))
	normalized = make([]string, 0, len(keys))
	for _, k := range keys {
		module, action, ok := SplitKey(k)
		if !ok {
			invalid = append(invalid, k)
			continue
		}
		key := Key(module, action)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, key)
	}
	return normalized, invalid
}
