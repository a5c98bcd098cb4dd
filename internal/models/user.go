package models

import "time"

// User represents a portal account.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email    string `gorm:"type:text;not null;index"`       // Contact email.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	DisplayName string `gorm:"type:text"` // Optional display name.

	Disabled bool `gorm:"not null;default:false"` // Blocks sign-in when true.

	TOTPSecret string `gorm:"type:text"` // TOTP secret for MFA, empty when disabled.

	LastLoginAt *time.Time `gorm:""`          // Last successful login time.
	LastLoginIP string     `gorm:"type:text"` // Last successful login source IP.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
