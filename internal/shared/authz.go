package shared

// Role and permission administration scopes.
const (
	PermRolesView   = "roles.view"
	PermRolesEdit   = "roles.edit"
	PermRolesCreate = "roles.create"
	PermRolesDelete = "roles.delete"
	PermRolesAssign = "roles.assign"

	PermPermissionsView = "permissions.view"

	PermSecurityAudit = "security.audit"
)
