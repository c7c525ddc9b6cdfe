package rbac

import "sort"

// Actions that stay SuperAdmin-only even for admin-role staff once the
// registry marks them as admin-gated. Kept as policy rather than registry data.
const (
	ActionCreateAdminAccounts    = "create_admin_accounts"
	ActionManageAdminPermissions = "manage_admin_permissions"
	ActionManageRoleDefaults     = "manage_role_defaults"
)

// ModulePermissions holds the actions that administer access itself.
const (
	ModulePermissions     = "permissions"
	ActionManageOverrides = "manage_overrides"
)

var restrictedAdminActions = map[string]struct{}{
	ActionCreateAdminAccounts:    {},
	ActionManageAdminPermissions: {},
	ActionManageRoleDefaults:     {},
}

// IsRestrictedAdminAction reports whether action is in the SuperAdmin-only subset.
func IsRestrictedAdminAction(action string) bool {
	_, ok := restrictedAdminActions[normalize(action)]
	return ok
}

// RestrictedAdminActions lists the SuperAdmin-only subset in stable order.
func RestrictedAdminActions() []string {
	out := make([]string, 0, len(restrictedAdminActions))
	for a := range restrictedAdminActions {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// NavModule is the pseudo-module holding navigation-only permissions. They are
// structural UI affordances and never appear in the registry.
const NavModule = "nav"

// Navigation permissions.
const (
	NavDashboard      = "dashboard"
	NavProfile        = "profile"
	NavStudents       = "students"
	NavReports        = "reports"
	NavStaffList      = "staff_list"
	NavPermissionsTab = "permissions_tab"
	NavRolesTab       = "roles_tab"
)

// SuperAdminNav is every navigation permission.
func SuperAdminNav() []string {
	return navKeys(NavDashboard, NavProfile, NavStudents, NavReports, NavStaffList, NavPermissionsTab, NavRolesTab)
}

// AdminNav is unioned into the set of any admin-capable staff member.
func AdminNav() []string {
	return navKeys(NavStaffList, NavPermissionsTab)
}

// SafeFallbackNav keeps the UI usable when permission sources are degraded.
// It grants visibility only, never a destructive action.
func SafeFallbackNav() []string {
	return navKeys(NavDashboard, NavProfile)
}

func navKeys(actions ...string) []string {
	keys := make([]string, len(actions))
	for i, a := range actions {
		keys[i] = Key(NavModule, a)
	}
	return keys
}
