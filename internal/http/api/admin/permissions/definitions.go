// Package permissions maps admin routes to the permission keys that guard
// them.
package permissions

import (
	"github.com/craftbound/portal/internal/rbac"
)

// Definition binds one admin route to a permission key.
type Definition struct {
	Key        string // Route key, "METHOD /path".
	Permission string // Required permission key.
	Label      string // Human-readable description.
}

// Key builds the route key for a method and registered route path.
func Key(method, path string) string {
	return method + " " + path
}

// Definitions returns the full admin route catalogue.
func Definitions() []Definition {
	return []Definition{
		{Key: "GET /v0/admin/users", Permission: rbac.PermUsersManage, Label: "List users"},
		{Key: "POST /v0/admin/users", Permission: rbac.PermUsersManage, Label: "Create user"},
		{Key: "GET /v0/admin/users/:id", Permission: rbac.PermUsersManage, Label: "Get user"},
		{Key: "PATCH /v0/admin/users/:id", Permission: rbac.PermUsersManage, Label: "Update user"},
		{Key: "GET /v0/admin/users/:id/authme/bindings", Permission: rbac.PermUsersManage, Label: "List user bindings"},
		{Key: "POST /v0/admin/users/:id/authme/bindings", Permission: rbac.PermUsersManage, Label: "Bind user"},
		{Key: "GET /v0/admin/users/:id/authme/history", Permission: rbac.PermUsersManage, Label: "User binding history"},
		{Key: "PATCH /v0/admin/authme/bindings/:id", Permission: rbac.PermUsersManage, Label: "Update binding"},
		{Key: "PATCH /v0/admin/authme/bindings/:id/primary", Permission: rbac.PermUsersManage, Label: "Set primary binding"},
		{Key: "DELETE /v0/admin/authme/bindings/:id", Permission: rbac.PermUsersManage, Label: "Unbind"},
		{Key: "GET /v0/admin/roles", Permission: rbac.PermRolesManage, Label: "List roles"},
		{Key: "POST /v0/admin/roles", Permission: rbac.PermRolesManage, Label: "Create role"},
		{Key: "PATCH /v0/admin/roles/:id", Permission: rbac.PermRolesManage, Label: "Update role"},
		{Key: "DELETE /v0/admin/roles/:id", Permission: rbac.PermRolesManage, Label: "Delete role"},
		{Key: "GET /v0/admin/permissions", Permission: rbac.PermRolesManage, Label: "List permissions"},
		{Key: "POST /v0/admin/users/:id/roles", Permission: rbac.PermRolesManage, Label: "Assign role"},
		{Key: "DELETE /v0/admin/users/:id/roles/:role_id", Permission: rbac.PermRolesManage, Label: "Remove role"},
		{Key: "GET /v0/admin/players", Permission: rbac.PermPlayersView, Label: "List players"},
		{Key: "GET /v0/admin/players/:username", Permission: rbac.PermPlayersView, Label: "Get player"},
		{Key: "GET /v0/admin/settings", Permission: rbac.PermSettingsManage, Label: "View settings"},
		{Key: "PUT /v0/admin/settings", Permission: rbac.PermSettingsManage, Label: "Update settings"},
	}
}

// DefinitionMap returns the catalogue keyed by route key.
func DefinitionMap() map[string]Definition {
	defs := Definitions()
	out := make(map[string]Definition, len(defs))
	for _, def := range defs {
		out[def.Key] = def
	}
	return out
}

// HasPermission reports whether the granted set covers the required key.
func HasPermission(granted []string, required string) bool {
	for _, key := range granted {
		if key == required {
			return true
		}
	}
	return false
}
