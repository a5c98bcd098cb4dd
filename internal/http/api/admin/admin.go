package admin

import (
	"net/http"
	"strings"

	"github.com/craftbound/portal/internal/authme"
	"github.com/craftbound/portal/internal/config"
	"github.com/craftbound/portal/internal/http/api/admin/handlers"
	"github.com/craftbound/portal/internal/ledger"
	"github.com/craftbound/portal/internal/models"
	"github.com/craftbound/portal/internal/rbac"
	"github.com/craftbound/portal/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers authenticated administrative routes.
//
// Admin access is plain user authentication plus RBAC: every route listed in
// the permissions catalogue requires its permission key.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, bindings *ledger.Service, access *rbac.Service, bridge *authme.Client) {
	if r == nil || db == nil {
		return
	}

	adminGroup := r.Group("/v0/admin")
	adminGroup.Use(adminAuthMiddleware(db, jwtCfg))
	adminGroup.Use(adminPermissionMiddleware(access))

	userHandler := handlers.NewUserHandler(db, bindings, access)
	adminGroup.GET("/users", userHandler.List)
	adminGroup.POST("/users", userHandler.Create)
	adminGroup.GET("/users/:id", userHandler.Get)
	adminGroup.PATCH("/users/:id", userHandler.Update)

	bindingHandler := handlers.NewBindingHandler(db, bindings)
	adminGroup.GET("/users/:id/authme/bindings", bindingHandler.ListForUser)
	adminGroup.POST("/users/:id/authme/bindings", bindingHandler.BindForUser)
	adminGroup.GET("/users/:id/authme/history", bindingHandler.HistoryForUser)
	adminGroup.PATCH("/authme/bindings/:id", bindingHandler.Update)
	adminGroup.PATCH("/authme/bindings/:id/primary", bindingHandler.SetPrimary)
	adminGroup.DELETE("/authme/bindings/:id", bindingHandler.Unbind)

	roleHandler := handlers.NewRoleHandler(db, access)
	adminGroup.GET("/roles", roleHandler.List)
	adminGroup.POST("/roles", roleHandler.Create)
	adminGroup.PATCH("/roles/:id", roleHandler.Update)
	adminGroup.DELETE("/roles/:id", roleHandler.Delete)
	adminGroup.GET("/permissions", roleHandler.ListPermissions)
	adminGroup.POST("/users/:id/roles", roleHandler.AssignRole)
	adminGroup.DELETE("/users/:id/roles/:role_id", roleHandler.RemoveRole)

	playerHandler := handlers.NewPlayerHandler(bridge)
	adminGroup.GET("/players", playerHandler.List)
	adminGroup.GET("/players/:username", playerHandler.Get)

	settingsHandler := handlers.NewSettingsHandler(db)
	adminGroup.GET("/settings", settingsHandler.Get)
	adminGroup.PUT("/settings", settingsHandler.Update)
}

// adminAuthMiddleware validates user JWTs for the admin surface.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).Select("id", "disabled").First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}
