package admin

import (
	"net/http"

	permissions "github.com/craftbound/portal/internal/http/api/admin/permissions"
	"github.com/craftbound/portal/internal/rbac"
	"github.com/gin-gonic/gin"
)

// adminPermissionMiddleware enforces permission checks for admin routes.
//
// Every admin route must appear in the permissions catalogue; an unlisted
// route is denied outright rather than silently allowed.
func adminPermissionMiddleware(access *rbac.Service) gin.HandlerFunc {
	permissionMap := permissions.DefinitionMap()

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		key := permissions.Key(c.Request.Method, path)
		def, ok := permissionMap[key]
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		granted, ok := readGrantedPermissionsFromContext(c)
		if !ok {
			userID := readUserIDFromContext(c)
			if userID == 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
				return
			}
			var errPerms error
			granted, errPerms = access.UserPermissions(c.Request.Context(), userID)
			if errPerms != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "permission lookup failed"})
				return
			}
			c.Set("grantedPermissions", granted)
		}

		if !permissions.HasPermission(granted, def.Permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		c.Next()
	}
}

// readGrantedPermissionsFromContext extracts cached permissions from context.
func readGrantedPermissionsFromContext(c *gin.Context) ([]string, bool) {
	value, ok := c.Get("grantedPermissions")
	if !ok {
		return nil, false
	}
	granted, ok := value.([]string)
	return granted, ok
}

// readUserIDFromContext extracts the authenticated user ID from context.
func readUserIDFromContext(c *gin.Context) uint64 {
	value, ok := c.Get("userID")
	if !ok {
		return 0
	}
	userID, ok := value.(uint64)
	if !ok {
		return 0
	}
	return userID
}
