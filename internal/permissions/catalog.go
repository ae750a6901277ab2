package permissions

// DefaultCatalog returns the built-in permission set shipped with the
// platform. Seeding is idempotent so the catalog can safely grow between
// releases; operator-defined permissions live alongside these rows.
func DefaultCatalog() []Permission {
	return []Permission{
		// User management
		{Key: "users.view", Name: "View Users", Category: "user_management", Description: "View user profiles and lists", DangerLevel: 1, IsSystem: true},
		{Key: "users.create", Name: "Create Users", Category: "user_management", Description: "Create new user accounts", DangerLevel: 2, IsSystem: true},
		{Key: "users.edit", Name: "Edit Users", Category: "user_management", Description: "Modify user profiles and settings", DangerLevel: 3, IsSystem: true},
		{Key: "users.delete", Name: "Delete Users", Category: "user_management", Description: "Delete user accounts", DangerLevel: 4, RequiresApproval: true, IsSystem: true},
		{Key: "users.ban", Name: "Ban Users", Category: "user_management", Description: "Ban or suspend users", DangerLevel: 4, IsSystem: true},
		{Key: "users.impersonate", Name: "Impersonate Users", Category: "user_management", Description: "Login as another user", DangerLevel: 5, RequiresApproval: true, IsSystem: true},

		// Content management
		{Key: "content.view", Name: "View Content", Category: "content_management", Description: "View all content and posts", DangerLevel: 1, IsSystem: true},
		{Key: "content.create", Name: "Create Content", Category: "content_management", Description: "Create new content", DangerLevel: 2, IsSystem: true},
		{Key: "content.edit", Name: "Edit Content", Category: "content_management", Description: "Modify existing content", DangerLevel: 2, IsSystem: true},
		{Key: "content.delete", Name: "Delete Content", Category: "content_management", Description: "Delete content permanently", DangerLevel: 3, IsSystem: true},
		{Key: "content.moderate", Name: "Moderate Content", Category: "content_management", Description: "Approve, reject, or flag content", DangerLevel: 3, IsSystem: true},
		{Key: "content.publish", Name: "Publish Content", Category: "content_management", Description: "Publish content publicly", DangerLevel: 2, IsSystem: true},

		// Trading operations
		{Key: "trading.view", Name: "View Trades", Category: "trading_operations", Description: "View trading activity and history", DangerLevel: 1, IsSystem: true},
		{Key: "trading.execute", Name: "Execute Trades", Category: "trading_operations", Description: "Execute trading operations", DangerLevel: 2, IsSystem: true},
		{Key: "trading.manage_others", Name: "Manage Others Trades", Category: "trading_operations", Description: "Manage other users trades", DangerLevel: 4, IsSystem: true},
		{Key: "trading.market_admin", Name: "Market Administration", Category: "trading_operations", Description: "Administer market settings", DangerLevel: 4, IsSystem: true},
		{Key: "trading.currency_admin", Name: "Currency Administration", Category: "trading_operations", Description: "Manage virtual currency", DangerLevel: 5, IsSystem: true},

		// System administration
		{Key: "system.view", Name: "View System Info", Category: "system_administration", Description: "View system information and status", DangerLevel: 2, IsSystem: true},
		{Key: "system.configure", Name: "Configure System", Category: "system_administration", Description: "Modify system configuration", DangerLevel: 4, IsSystem: true},
		{Key: "system.maintenance", Name: "System Maintenance", Category: "system_administration", Description: "Perform system maintenance", DangerLevel: 4, IsSystem: true},
		{Key: "system.backup", Name: "System Backup", Category: "system_administration", Description: "Create and manage backups", DangerLevel: 3, IsSystem: true},
		{Key: "database.access", Name: "Database Access", Category: "system_administration", Description: "Direct database access", DangerLevel: 5, RequiresApproval: true, IsSystem: true},

		// Security and compliance
		{Key: "security.audit", Name: "Security Audits", Category: "security_compliance", Description: "View security audit logs", DangerLevel: 3, IsSystem: true},
		{Key: "security.manage", Name: "Security Management", Category: "security_compliance", Description: "Manage security settings", DangerLevel: 4, IsSystem: true},
		{Key: "roles.view", Name: "View Roles", Category: "security_compliance", Description: "View roles and permissions", DangerLevel: 2, IsSystem: true},
		{Key: "roles.edit", Name: "Edit Roles", Category: "security_compliance", Description: "Modify roles and permissions", DangerLevel: 4, IsSystem: true},
		{Key: "roles.create", Name: "Create Roles", Category: "security_compliance", Description: "Create new roles", DangerLevel: 4, IsSystem: true},
		{Key: "roles.delete", Name: "Delete Roles", Category: "security_compliance", Description: "Delete custom roles", DangerLevel: 4, RequiresApproval: true, IsSystem: true},
		{Key: "roles.assign", Name: "Assign Roles", Category: "security_compliance", Description: "Assign roles to users", DangerLevel: 3, IsSystem: true},
		{Key: "permissions.view", Name: "View Permission Catalog", Category: "security_compliance", Description: "Browse the permission registry", DangerLevel: 1, IsSystem: true},

		// Analytics and reporting
		{Key: "analytics.view", Name: "View Analytics", Category: "analytics_reporting", Description: "View analytics and reports", DangerLevel: 2, IsSystem: true},
		{Key: "analytics.export", Name: "Export Analytics", Category: "analytics_reporting", Description: "Export analytics data", DangerLevel: 2, IsSystem: true},
		{Key: "reports.generate", Name: "Generate Reports", Category: "analytics_reporting", Description: "Generate custom reports", DangerLevel: 2, IsSystem: true},
		{Key: "reports.schedule", Name: "Schedule Reports", Category: "analytics_reporting", Description: "Schedule automated reports", DangerLevel: 3, IsSystem: true},

		// Communication
		{Key: "notifications.send", Name: "Send Notifications", Category: "communication", Description: "Send notifications to users", DangerLevel: 2, IsSystem: true},
		{Key: "announcements.create", Name: "Create Announcements", Category: "communication", Description: "Create system announcements", DangerLevel: 3, IsSystem: true},
		{Key: "messages.admin", Name: "Administrative Messaging", Category: "communication", Description: "Send administrative messages", DangerLevel: 3, IsSystem: true},
		{Key: "communication.moderate", Name: "Moderate Communication", Category: "communication", Description: "Moderate messages and communications", DangerLevel: 3, IsSystem: true},
	}
}
