package models

import "time"

// Profile stores per-user display state, one row per user.
//
// PrimaryAuthmeBindingID is a weak reference into authme_bindings: the profile
// records which binding is currently primary but does not own its lifecycle.
// Every mutation that could dangle the pointer must clear it in the same
// transaction.
type Profile struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user ID.

	PrimaryAuthmeBindingID *uint64 `gorm:"index"` // Current primary binding, nil when none.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
