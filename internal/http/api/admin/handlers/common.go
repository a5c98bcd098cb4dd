package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/craftbound/portal/internal/ledger"
	"github.com/gin-gonic/gin"
)

// operatorID returns the acting admin's user ID from context, nil when absent.
func operatorID(c *gin.Context) *uint64 {
	value, ok := c.Get("userID")
	if !ok {
		return nil
	}
	id, ok := value.(uint64)
	if !ok || id == 0 {
		return nil
	}
	return &id
}

// parseIDParam parses a numeric path parameter.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(c.Param(name), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// parsePageQuery reads page/page_size query parameters with defaults.
func parsePageQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// respondLedgerError maps ledger errors to HTTP statuses.
func respondLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrExternalUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authme unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
