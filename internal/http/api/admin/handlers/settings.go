package handlers

import (
	"net/http"

	"github.com/craftbound/portal/internal/settings"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SettingsHandler manages site settings.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// Get returns every recognized setting with its effective value.
func (h *SettingsHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"site_name":         settings.SiteName(),
		"registration_open": settings.RegistrationOpen(),
		"server_address":    settings.ServerAddress(),
		"discord_invite":    settings.DiscordInvite(),
		"updated_at":        settings.UpdatedAt(),
	})
}

// updateSettingsRequest defines the request body for settings updates. Nil
// fields are left untouched.
type updateSettingsRequest struct {
	SiteName         *string `json:"site_name"`
	RegistrationOpen *bool   `json:"registration_open"`
	ServerAddress    *string `json:"server_address"`
	DiscordInvite    *string `json:"discord_invite"`
}

// Update writes the supplied settings and refreshes the snapshot.
func (h *SettingsHandler) Update(c *gin.Context) {
	var body updateSettingsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	changes := map[string]any{}
	if body.SiteName != nil {
		changes[settings.SiteNameKey] = *body.SiteName
	}
	if body.RegistrationOpen != nil {
		changes[settings.RegistrationOpenKey] = *body.RegistrationOpen
	}
	if body.ServerAddress != nil {
		changes[settings.ServerAddressKey] = *body.ServerAddress
	}
	if body.DiscordInvite != nil {
		changes[settings.DiscordInviteKey] = *body.DiscordInvite
	}
	if len(changes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	for key, value := range changes {
		if errSet := settings.Set(c.Request.Context(), h.db, key, value); errSet != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update settings failed"})
			return
		}
	}

	h.Get(c)
}
