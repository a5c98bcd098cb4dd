package models

// RolePermission joins roles to their granted permissions.
type RolePermission struct {
	RoleID       uint64 `gorm:"primaryKey"` // Role in this mapping.
	PermissionID uint64 `gorm:"primaryKey"` // Permission in this mapping.
}
