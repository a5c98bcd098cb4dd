package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/craftbound/portal/internal/models"
	"gorm.io/gorm"
)

// Service answers permission checks by unioning the permission keys
// reachable from all of a user's assigned roles.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// HasPermission reports whether the user holds the permission key.
func (s *Service) HasPermission(ctx context.Context, userID uint64, key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("rbac: service not initialized")
	}

	var count int64
	errCount := s.db.WithContext(ctx).Table("permissions").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ? AND permissions.key = ?", userID, key).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("rbac: check permission: %w", errCount)
	}
	return count > 0, nil
}

// UserPermissions returns the sorted set of permission keys a user holds.
func (s *Service) UserPermissions(ctx context.Context, userID uint64) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("rbac: service not initialized")
	}

	var keys []string
	errPluck := s.db.WithContext(ctx).Table("permissions").
		Select("DISTINCT permissions.key").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ?", userID).
		Pluck("permissions.key", &keys).Error
	if errPluck != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", errPluck)
	}
	sort.Strings(keys)
	return keys, nil
}

// UserRoles returns the roles assigned to a user.
func (s *Service) UserRoles(ctx context.Context, userID uint64) ([]models.Role, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("rbac: service not initialized")
	}

	var roles []models.Role
	errFind := s.db.WithContext(ctx).Table("roles").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Find(&roles).Error
	if errFind != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", errFind)
	}
	return roles, nil
}

// AssignRole links a role to a user, ignoring duplicate assignments.
func (s *Service) AssignRole(ctx context.Context, userID, roleID uint64) error {
	if s == nil || s.db == nil {
		return errors.New("rbac: service not initialized")
	}

	var role models.Role
	if errFind := s.db.WithContext(ctx).First(&role, roleID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return gorm.ErrRecordNotFound
		}
		return fmt.Errorf("rbac: find role: %w", errFind)
	}

	var existing models.UserRole
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("rbac: check assignment: %w", errFind)
	}
	if errCreate := s.db.WithContext(ctx).Create(&models.UserRole{UserID: userID, RoleID: roleID}).Error; errCreate != nil {
		return fmt.Errorf("rbac: assign role: %w", errCreate)
	}
	return nil
}

// RemoveRole unlinks a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID uint64) error {
	if s == nil || s.db == nil {
		return errors.New("rbac: service not initialized")
	}
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&models.UserRole{})
	if res.Error != nil {
		return fmt.Errorf("rbac: remove role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
