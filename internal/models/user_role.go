package models

import "time"

// UserRole joins users to their assigned roles.
type UserRole struct {
	UserID uint64 `gorm:"primaryKey"` // User in this mapping.
	RoleID uint64 `gorm:"primaryKey"` // Role in this mapping.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Assignment timestamp.
}
