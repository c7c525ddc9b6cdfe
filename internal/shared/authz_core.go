package shared

// Back-office permission keys gated by handlers. They are seeded into the
// registry from the rbac catalog.
const (
	PermStudentsView = "students.view"
	PermStudentsEdit = "students.edit"

	PermStaffView = "staff.view"
	PermStaffEdit = "staff.edit"

	PermPermissionsView            = "permissions.view"
	PermPermissionsManageOverrides = "permissions.manage_overrides"
	PermPermissionsManageAdmins    = "permissions.manage_admin_permissions"
	PermPermissionsManageDefaults  = "permissions.manage_role_defaults"

	NavStaffList      = "nav.staff_list"
	NavPermissionsTab = "nav.permissions_tab"
	NavRolesTab       = "nav.roles_tab"
)

// CoreScopes lists the registry-backed permissions the core screens use.
func CoreScopes() []string {
	return []string{
		PermStudentsView,
		PermStudentsEdit,
		PermStaffView,
		PermStaffEdit,
		PermPermissionsView,
		PermPermissionsManageOverrides,
		PermPermissionsManageAdmins,
		PermPermissionsManageDefaults,
	}
}
