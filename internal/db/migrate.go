package db

import (
	"errors"
	"fmt"

	"github.com/craftbound/portal/internal/models"
	"gorm.io/gorm"
)

// Migrate applies the portal schema and seeds permission and role rows.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.MinecraftProfile{},
		&models.AuthmeBinding{},
		&models.AuthmeBindingHistory{},
		&models.Role{},
		&models.Permission{},
		&models.RolePermission{},
		&models.UserRole{},
		&models.Setting{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return seedAccessControl(conn)
}

// seedPermission describes a permission row created at migration time.
type seedPermission struct {
	Key   string
	Label string
}

var seedPermissions = []seedPermission{
	{Key: "users.manage", Label: "Manage user accounts and AuthMe bindings"},
	{Key: "roles.manage", Label: "Manage roles and permission assignments"},
	{Key: "players.view", Label: "Browse AuthMe player records"},
	{Key: "settings.manage", Label: "Manage site settings"},
}

// seedAccessControl inserts the permission catalogue and system roles.
// It is idempotent; existing rows are left untouched.
func seedAccessControl(conn *gorm.DB) error {
	return conn.Transaction(func(tx *gorm.DB) error {
		for _, seed := range seedPermissions {
			var existing models.Permission
			errFind := tx.Where("key = ?", seed.Key).First(&existing).Error
			if errFind == nil {
				continue
			}
			if !errors.Is(errFind, gorm.ErrRecordNotFound) {
				return fmt.Errorf("db: seed permission %s: %w", seed.Key, errFind)
			}
			if errCreate := tx.Create(&models.Permission{Key: seed.Key, Label: seed.Label}).Error; errCreate != nil {
				return fmt.Errorf("db: seed permission %s: %w", seed.Key, errCreate)
			}
		}

		adminRole, errAdmin := ensureSystemRole(tx, "admin", "Full administrative access")
		if errAdmin != nil {
			return errAdmin
		}
		if _, errMember := ensureSystemRole(tx, "member", "Default member role"); errMember != nil {
			return errMember
		}

		// The admin role always carries the full permission catalogue.
		var perms []models.Permission
		if errFind := tx.Find(&perms).Error; errFind != nil {
			return fmt.Errorf("db: load permissions: %w", errFind)
		}
		for _, perm := range perms {
			var link models.RolePermission
			errFind := tx.Where("role_id = ? AND permission_id = ?", adminRole.ID, perm.ID).First(&link).Error
			if errFind == nil {
				continue
			}
			if !errors.Is(errFind, gorm.ErrRecordNotFound) {
				return fmt.Errorf("db: check role permission: %w", errFind)
			}
			if errCreate := tx.Create(&models.RolePermission{RoleID: adminRole.ID, PermissionID: perm.ID}).Error; errCreate != nil {
				return fmt.Errorf("db: seed role permission: %w", errCreate)
			}
		}
		return nil
	})
}

// ensureSystemRole creates a system role when missing and returns it.
func ensureSystemRole(tx *gorm.DB, name, description string) (*models.Role, error) {
	var role models.Role
	errFind := tx.Where("name = ?", name).First(&role).Error
	if errFind == nil {
		return &role, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("db: find role %s: %w", name, errFind)
	}
	role = models.Role{Name: name, Description: description, IsSystem: true}
	if errCreate := tx.Create(&role).Error; errCreate != nil {
		return nil, fmt.Errorf("db: seed role %s: %w", name, errCreate)
	}
	return &role, nil
}
