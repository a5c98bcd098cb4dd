package front

import (
	"net/http"
	"strings"

	"github.com/craftbound/portal/internal/config"
	"github.com/craftbound/portal/internal/http/api/front/handlers"
	"github.com/craftbound/portal/internal/ledger"
	"github.com/craftbound/portal/internal/models"
	"github.com/craftbound/portal/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterFrontRoutes registers public and authenticated self-service routes.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, bindings *ledger.Service) {
	if r == nil || db == nil {
		return
	}

	frontGroup := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	frontGroup.POST("/register", authHandler.Register)
	frontGroup.POST("/login", authHandler.Login)
	frontGroup.POST("/login/prepare", authHandler.LoginPrepare)
	frontGroup.POST("/login/totp", authHandler.LoginTOTP)
	frontGroup.GET("/config", handlers.GetPublicConfig)

	authed := frontGroup.Group("")
	authed.Use(userAuthMiddleware(db, jwtCfg))

	profileHandler := handlers.NewProfileHandler(db, bindings)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile", profileHandler.Update)
	authed.PUT("/profile/password", profileHandler.ChangePassword)

	mfaHandler := handlers.NewMFAHandler(db)
	authed.GET("/mfa/status", mfaHandler.Status)
	authed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	authmeHandler := handlers.NewAuthmeHandler(bindings)
	authed.GET("/authme/bindings", authmeHandler.List)
	authed.POST("/authme/bindings", authmeHandler.Bind)
	authed.PATCH("/authme/bindings/:id/primary", authmeHandler.SetPrimary)
	authed.DELETE("/authme/bindings/:id", authmeHandler.Unbind)
	authed.GET("/authme/history", authmeHandler.History)
}

// userAuthMiddleware validates user JWTs and loads the user into context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
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
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
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
