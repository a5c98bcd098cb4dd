package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/craftbound/portal/internal/authme"
	"github.com/craftbound/portal/internal/ledger"
	"github.com/gin-gonic/gin"
)

// PlayerHandler exposes AuthMe player records for moderation views.
type PlayerHandler struct {
	bridge *authme.Client
}

// NewPlayerHandler constructs a PlayerHandler.
func NewPlayerHandler(bridge *authme.Client) *PlayerHandler {
	return &PlayerHandler{bridge: bridge}
}

// List returns a page of AuthMe accounts matching an optional search.
func (h *PlayerHandler) List(c *gin.Context) {
	if h.bridge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authme not configured"})
		return
	}
	page, pageSize := parsePageQuery(c)
	query := strings.TrimSpace(c.Query("q"))

	players, total, errList := h.bridge.ListPlayers(c.Request.Context(), query, page, pageSize)
	if errList != nil {
		respondLedgerError(c, fmt.Errorf("%w: %v", ledger.ErrExternalUnavailable, errList))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"players":   players,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Get returns one AuthMe account by username.
func (h *PlayerHandler) Get(c *gin.Context) {
	if h.bridge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authme not configured"})
		return
	}
	username := strings.TrimSpace(c.Param("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}

	account, errGet := h.bridge.GetAccount(c.Request.Context(), username)
	if errGet != nil {
		respondLedgerError(c, fmt.Errorf("%w: %v", ledger.ErrExternalUnavailable, errGet))
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return
	}

	c.JSON(http.StatusOK, account)
}
