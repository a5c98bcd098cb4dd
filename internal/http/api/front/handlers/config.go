package handlers

import (
	"net/http"

	"github.com/craftbound/portal/internal/settings"
	"github.com/gin-gonic/gin"
)

// GetPublicConfig returns the site configuration exposed to anonymous
// visitors.
func GetPublicConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"site_name":         settings.SiteName(),
		"registration_open": settings.RegistrationOpen(),
		"server_address":    settings.ServerAddress(),
		"discord_invite":    settings.DiscordInvite(),
	})
}
