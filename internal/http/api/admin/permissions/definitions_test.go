package permissions

import (
	"testing"

	"github.com/craftbound/portal/internal/rbac"
)

func TestDefinitionMapIncludesBindingRoutes(t *testing.T) {
	t.Parallel()

	definitionMap := DefinitionMap()
	requiredKeys := []string{
		"GET /v0/admin/users/:id/authme/bindings",
		"POST /v0/admin/users/:id/authme/bindings",
		"GET /v0/admin/users/:id/authme/history",
		"PATCH /v0/admin/authme/bindings/:id",
		"PATCH /v0/admin/authme/bindings/:id/primary",
		"DELETE /v0/admin/authme/bindings/:id",
	}

	for _, key := range requiredKeys {
		key := key
		t.Run(key, func(t *testing.T) {
			t.Parallel()
			if _, ok := definitionMap[key]; !ok {
				t.Fatalf("DefinitionMap() missing permission key %q", key)
			}
		})
	}
}

func TestDefinitionMapIncludesRoleAndSettingsRoutes(t *testing.T) {
	t.Parallel()

	definitionMap := DefinitionMap()
	requiredKeys := []string{
		"GET /v0/admin/roles",
		"POST /v0/admin/roles",
		"PATCH /v0/admin/roles/:id",
		"DELETE /v0/admin/roles/:id",
		"GET /v0/admin/permissions",
		"POST /v0/admin/users/:id/roles",
		"DELETE /v0/admin/users/:id/roles/:role_id",
		"GET /v0/admin/settings",
		"PUT /v0/admin/settings",
	}

	for _, key := range requiredKeys {
		key := key
		t.Run(key, func(t *testing.T) {
			t.Parallel()
			if _, ok := definitionMap[key]; !ok {
				t.Fatalf("DefinitionMap() missing permission key %q", key)
			}
		})
	}
}

func TestDefinitionsUseSeededPermissionKeys(t *testing.T) {
	t.Parallel()

	known := map[string]bool{
		rbac.PermUsersManage:    true,
		rbac.PermRolesManage:    true,
		rbac.PermPlayersView:    true,
		rbac.PermSettingsManage: true,
	}
	for _, def := range Definitions() {
		if !known[def.Permission] {
			t.Fatalf("route %q references unknown permission %q", def.Key, def.Permission)
		}
		if def.Label == "" {
			t.Fatalf("route %q has no label", def.Key)
		}
	}
}

func TestKeyFormat(t *testing.T) {
	t.Parallel()

	if got := Key("GET", "/v0/admin/users"); got != "GET /v0/admin/users" {
		t.Fatalf("unexpected key: %q", got)
	}
}

func TestHasPermission(t *testing.T) {
	t.Parallel()

	granted := []string{rbac.PermPlayersView, rbac.PermUsersManage}
	if !HasPermission(granted, rbac.PermUsersManage) {
		t.Fatalf("granted key should match")
	}
	if HasPermission(granted, rbac.PermSettingsManage) {
		t.Fatalf("ungranted key should not match")
	}
	if HasPermission(nil, rbac.PermUsersManage) {
		t.Fatalf("empty grant set should never match")
	}
}
