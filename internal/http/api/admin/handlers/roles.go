package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/craftbound/portal/internal/models"
	"github.com/craftbound/portal/internal/rbac"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RoleHandler manages roles and role assignments.
type RoleHandler struct {
	db     *gorm.DB
	access *rbac.Service
}

// NewRoleHandler constructs a RoleHandler.
func NewRoleHandler(db *gorm.DB, access *rbac.Service) *RoleHandler {
	return &RoleHandler{db: db, access: access}
}

// List returns all roles with their permission keys.
func (h *RoleHandler) List(c *gin.Context) {
	var roles []models.Role
	if errFind := h.db.WithContext(c.Request.Context()).Order("id ASC").Find(&roles).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]gin.H, 0, len(roles))
	for _, role := range roles {
		keys, errKeys := h.rolePermissionKeys(c, role.ID)
		if errKeys != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		out = append(out, gin.H{
			"id":          role.ID,
			"name":        role.Name,
			"description": role.Description,
			"is_system":   role.IsSystem,
			"permissions": keys,
		})
	}
	c.JSON(http.StatusOK, gin.H{"roles": out})
}

// roleRequest defines the request body for role creation and updates.
type roleRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

// Create creates a role and grants the listed permissions.
func (h *RoleHandler) Create(c *gin.Context) {
	var body roleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	name := strings.TrimSpace(*body.Name)

	role := models.Role{Name: name}
	if body.Description != nil {
		role.Description = strings.TrimSpace(*body.Description)
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var exists models.Role
		if errCheck := tx.Where("name = ?", name).First(&exists).Error; errCheck == nil {
			return gorm.ErrDuplicatedKey
		}
		if errCreate := tx.Create(&role).Error; errCreate != nil {
			return errCreate
		}
		return replaceRolePermissions(tx, role.ID, body.Permissions)
	})
	if errors.Is(errTx, gorm.ErrDuplicatedKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role already exists"})
		return
	}
	if errors.Is(errTx, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown permission key"})
		return
	}
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create role failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": role.ID, "name": role.Name})
}

// Update renames a role or replaces its permission grants.
func (h *RoleHandler) Update(c *gin.Context) {
	roleID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body roleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if errFind := tx.First(&role, roleID).Error; errFind != nil {
			return errFind
		}

		updates := map[string]any{"updated_at": time.Now().UTC()}
		if body.Name != nil && !role.IsSystem {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return gorm.ErrInvalidData
			}
			updates["name"] = name
		}
		if body.Description != nil {
			updates["description"] = strings.TrimSpace(*body.Description)
		}
		if errUpdate := tx.Model(&role).Updates(updates).Error; errUpdate != nil {
			return errUpdate
		}

		if body.Permissions != nil {
			return replaceRolePermissions(tx, role.ID, body.Permissions)
		}
		return nil
	})
	if errors.Is(errTx, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "role or permission not found"})
		return
	}
	if errors.Is(errTx, gorm.ErrInvalidData) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update role failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a non-system role that has no remaining assignments.
func (h *RoleHandler) Delete(c *gin.Context) {
	roleID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var role models.Role
	if errFind := h.db.WithContext(c.Request.Context()).First(&role, roleID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "role not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if role.IsSystem {
		c.JSON(http.StatusForbidden, gin.H{"error": "system role cannot be deleted"})
		return
	}

	var assigned int64
	if errCount := h.db.WithContext(c.Request.Context()).Model(&models.UserRole{}).
		Where("role_id = ?", roleID).Count(&assigned).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if assigned > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role still assigned"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errGrants := tx.Where("role_id = ?", roleID).Delete(&models.RolePermission{}).Error; errGrants != nil {
			return errGrants
		}
		return tx.Delete(&models.Role{}, roleID).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete role failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListPermissions returns the permission catalogue.
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	var perms []models.Permission
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&perms).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

// assignRoleRequest defines the request body for role assignment.
type assignRoleRequest struct {
	RoleID uint64 `json:"role_id"`
}

// AssignRole grants a role to a user.
func (h *RoleHandler) AssignRole(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body assignRoleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.RoleID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing role_id"})
		return
	}

	if errAssign := h.access.AssignRole(c.Request.Context(), userID, body.RoleID); errAssign != nil {
		if errors.Is(errAssign, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "role not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assign role failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RemoveRole revokes a role from a user.
func (h *RoleHandler) RemoveRole(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	roleID, ok := parseIDParam(c, "role_id")
	if !ok {
		return
	}

	if errRemove := h.access.RemoveRole(c.Request.Context(), userID, roleID); errRemove != nil {
		if errors.Is(errRemove, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "assignment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remove role failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// rolePermissionKeys returns the permission keys granted to a role.
func (h *RoleHandler) rolePermissionKeys(c *gin.Context, roleID uint64) ([]string, error) {
	var keys []string
	errFind := h.db.WithContext(c.Request.Context()).Model(&models.Permission{}).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ?", roleID).
		Order("permissions.key ASC").
		Pluck("permissions.key", &keys).Error
	return keys, errFind
}

// replaceRolePermissions swaps a role's grants for the listed keys. Unknown
// keys abort with gorm.ErrRecordNotFound.
func replaceRolePermissions(tx *gorm.DB, roleID uint64, keys []string) error {
	if errClear := tx.Where("role_id = ?", roleID).Delete(&models.RolePermission{}).Error; errClear != nil {
		return errClear
	}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		var perm models.Permission
		if errFind := tx.Where("key = ?", key).First(&perm).Error; errFind != nil {
			return errFind
		}
		if errGrant := tx.Create(&models.RolePermission{RoleID: roleID, PermissionID: perm.ID}).Error; errGrant != nil {
			return errGrant
		}
	}
	return nil
}
