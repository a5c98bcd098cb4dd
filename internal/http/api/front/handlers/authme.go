package handlers

import (
	"net/http"
	"strings"

	"github.com/craftbound/portal/internal/ledger"
	"github.com/gin-gonic/gin"
)

// AuthmeHandler handles self-service AuthMe binding endpoints.
type AuthmeHandler struct {
	bindings *ledger.Service
}

// NewAuthmeHandler constructs an AuthmeHandler.
func NewAuthmeHandler(bindings *ledger.Service) *AuthmeHandler {
	return &AuthmeHandler{bindings: bindings}
}

// List returns the user's bindings enriched with live server data.
func (h *AuthmeHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	rows, errList := h.bindings.ListBindings(c.Request.Context(), userID)
	if errList != nil {
		respondLedgerError(c, errList)
		return
	}
	primaryID, errPrimary := h.bindings.PrimaryBindingID(c.Request.Context(), userID)
	if errPrimary != nil {
		respondLedgerError(c, errPrimary)
		return
	}

	set := h.bindings.ComposeSnapshots(c.Request.Context(), rows)
	c.JSON(http.StatusOK, gin.H{
		"primary_binding_id":    primaryID,
		"bindings":              set.Bindings,
		"permissions_snapshots": set.Permissions,
	})
}

// bindRequest defines the request body for binding an AuthMe account.
type bindRequest struct {
	Username   string `json:"username"`
	SetPrimary bool   `json:"set_primary"`
	Reason     string `json:"reason"`
}

// Bind links the user's account to an AuthMe username.
func (h *AuthmeHandler) Bind(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body bindRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	binding, errBind := h.bindings.Bind(c.Request.Context(), userID, body.Username, ledger.BindOptions{
		OperatorID: &userID,
		SourceIP:   c.ClientIP(),
		SetPrimary: body.SetPrimary,
		Reason:     strings.TrimSpace(body.Reason),
	})
	if errBind != nil {
		respondLedgerError(c, errBind)
		return
	}

	c.JSON(http.StatusCreated, binding)
}

// SetPrimary promotes one of the user's bindings to primary.
func (h *AuthmeHandler) SetPrimary(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	bindingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	binding, errSet := h.bindings.SetPrimary(c.Request.Context(), userID, bindingID, &userID)
	if errSet != nil {
		respondLedgerError(c, errSet)
		return
	}

	c.JSON(http.StatusOK, binding)
}

// Unbind removes one of the user's bindings.
func (h *AuthmeHandler) Unbind(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	bindingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if errUnbind := h.bindings.Unbind(c.Request.Context(), userID, bindingID, &userID, strings.TrimSpace(c.Query("reason"))); errUnbind != nil {
		respondLedgerError(c, errUnbind)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// History returns a page of the user's binding history, newest first.
func (h *AuthmeHandler) History(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	page, pageSize := parsePageQuery(c)

	entries, total, errList := h.bindings.History(c.Request.Context(), userID, page, pageSize)
	if errList != nil {
		respondLedgerError(c, errList)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":   entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
