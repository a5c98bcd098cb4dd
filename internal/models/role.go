package models

import "time"

// Role groups permissions for assignment to users.
type Role struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:text;not null;uniqueIndex"` // Unique role name.
	Description string `gorm:"type:text"`                      // Human-readable purpose.

	IsSystem bool `gorm:"not null;default:false"` // Seeded roles that cannot be deleted.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
