package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/craftbound/portal/internal/ledger"
	"github.com/craftbound/portal/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BindingHandler manages AuthMe bindings on behalf of any user.
type BindingHandler struct {
	db       *gorm.DB
	bindings *ledger.Service
}

// NewBindingHandler constructs a BindingHandler.
func NewBindingHandler(db *gorm.DB, bindings *ledger.Service) *BindingHandler {
	return &BindingHandler{db: db, bindings: bindings}
}

// ListForUser returns a user's bindings enriched with live server data.
func (h *BindingHandler) ListForUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
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

// adminBindRequest defines the request body for binding on a user's behalf.
type adminBindRequest struct {
	Username   string `json:"username"`
	SetPrimary bool   `json:"set_primary"`
	Reason     string `json:"reason"`
}

// BindForUser links a user to an AuthMe account on their behalf.
func (h *BindingHandler) BindForUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body adminBindRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	binding, errBind := h.bindings.Bind(c.Request.Context(), userID, body.Username, ledger.BindOptions{
		OperatorID: operatorID(c),
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

// HistoryForUser returns a page of a user's binding history, newest first.
func (h *BindingHandler) HistoryForUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
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

// updateBindingRequest defines the request body for binding updates.
type updateBindingRequest struct {
	AuthmeRealname *string        `json:"authme_realname"`
	Status         *string        `json:"status"`
	Notes          *string        `json:"notes"`
	Metadata       datatypes.JSON `json:"metadata"`
	TargetUserID   *uint64        `json:"target_user_id"`
	Primary        *bool          `json:"primary"`
	Reason         string         `json:"reason"`
}

// Update applies a partial update or ownership transfer to a binding.
func (h *BindingHandler) Update(c *gin.Context) {
	bindingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body updateBindingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ownerID, ok := h.bindingOwner(c, bindingID)
	if !ok {
		return
	}

	binding, errUpdate := h.bindings.Update(c.Request.Context(), ownerID, bindingID, ledger.UpdatePatch{
		AuthmeRealname: body.AuthmeRealname,
		Status:         body.Status,
		Notes:          body.Notes,
		Metadata:       body.Metadata,
		TargetUserID:   body.TargetUserID,
		Primary:        body.Primary,
		Reason:         strings.TrimSpace(body.Reason),
	}, operatorID(c))
	if errUpdate != nil {
		respondLedgerError(c, errUpdate)
		return
	}

	c.JSON(http.StatusOK, binding)
}

// SetPrimary promotes a binding to its owner's primary binding.
func (h *BindingHandler) SetPrimary(c *gin.Context) {
	bindingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ownerID, ok := h.bindingOwner(c, bindingID)
	if !ok {
		return
	}

	binding, errSet := h.bindings.SetPrimary(c.Request.Context(), ownerID, bindingID, operatorID(c))
	if errSet != nil {
		respondLedgerError(c, errSet)
		return
	}

	c.JSON(http.StatusOK, binding)
}

// Unbind removes a binding from its owner.
func (h *BindingHandler) Unbind(c *gin.Context) {
	bindingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ownerID, ok := h.bindingOwner(c, bindingID)
	if !ok {
		return
	}

	if errUnbind := h.bindings.Unbind(c.Request.Context(), ownerID, bindingID, operatorID(c), strings.TrimSpace(c.Query("reason"))); errUnbind != nil {
		respondLedgerError(c, errUnbind)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// bindingOwner resolves the owning user of a binding.
func (h *BindingHandler) bindingOwner(c *gin.Context, bindingID uint64) (uint64, bool) {
	var binding models.AuthmeBinding
	if errFind := h.db.WithContext(c.Request.Context()).Select("id", "user_id").First(&binding, bindingID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "binding not found"})
			return 0, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return 0, false
	}
	return binding.UserID, true
}
