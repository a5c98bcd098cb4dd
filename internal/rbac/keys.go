package rbac

// Permission keys known to the portal.
const (
	// PermUsersManage grants user administration and AuthMe binding mutations.
	PermUsersManage = "users.manage"
	// PermRolesManage grants role and permission administration.
	PermRolesManage = "roles.manage"
	// PermPlayersView grants read access to AuthMe player listings.
	PermPlayersView = "players.view"
	// PermSettingsManage grants site settings administration.
	PermSettingsManage = "settings.manage"
)
