package rbac

import (
	"strings"
	"time"
)

// StaffMember is the read-only identity snapshot the resolver decides on.
type StaffMember struct {
	ID           int64 `json:"id"`
	RoleTypeID   int64 `json:"role_type_id"`
	IsSuperAdmin bool  `json:"is_super_admin"`
	IsAdminRole  bool  `json:"is_admin_role"`
	Active       bool  `json:"active"`
}

// PermissionDefinition registers one module.action pair.
type PermissionDefinition struct {
	Module            string `json:"module"`
	Action            string `json:"action"`
	Description       string `json:"description"`
	Active            bool   `json:"active"`
	RequiresAdminRole bool   `json:"requires_admin_role"`
}

// Key returns the module.action key of the definition.
func (d PermissionDefinition) Key() string {
	return Key(d.Module, d.Action)
}

// RoleDefault is the default grant of a role type for one module.action.
type RoleDefault struct {
	RoleTypeID int64  `json:"role_type_id"`
	Module     string `json:"module"`
	Action     string `json:"action"`
	Allowed    bool   `json:"allowed"`
}

// Key returns the module.action key of the default.
func (d RoleDefault) Key() string {
	return Key(d.Module, d.Action)
}

// StaffOverride is an explicit grant or deny for one staff member that wins
// over the role default.
type StaffOverride struct {
	StaffID   int64     `json:"staff_id"`
	Module    string    `json:"module"`
	Action    string    `json:"action"`
	Allowed   bool      `json:"allowed"`
	UpdatedBy int64     `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the module.action key of the override.
func (o StaffOverride) Key() string {
	return Key(o.Module, o.Action)
}

// Key builds the canonical "module.action" permission key.
func Key(module, action string) string {
	return normalize(module) + "." + normalize(action)
}

// SplitKey splits a "module.action" key. The action may itself not contain dots.
// Either half being blank after normalization makes the key malformed.
func SplitKey(key string) (module, action string, ok bool) {
	idx := strings.LastIndexByte(key, '.')
	if idx < 0 {
		return "", "", false
	}
	module, action = normalize(key[:idx]), normalize(key[idx+1:])
	if module == "" || action == "" {
		return "", "", false
	}
	return module, action, true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Flag is the 'Y'/'N' column encoding used by the permission tables.
// Only storage adapters should touch it.
type Flag string

const (
	FlagYes Flag = "Y"
	FlagNo  Flag = "N"
)

// FlagOf encodes a boolean.
func FlagOf(allowed bool) Flag {
	if allowed {
		return FlagYes
	}
	return FlagNo
}

// Bool decodes the flag. Anything other than Y (case-insensitive) is a deny.
func (f Flag) Bool() bool {
	return strings.EqualFold(strings.TrimSpace(string(f)), string(FlagYes))
}
