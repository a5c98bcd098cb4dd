package models

import "time"

// MinecraftProfile is a nickname record owned by a user.
//
// AuthmeBindingID is an optional cross-reference into authme_bindings with an
// independent lifecycle: deleting a binding nulls the reference but keeps the
// profile.
type MinecraftProfile struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"` // Owning user ID.

	Nickname string `gorm:"type:text;not null"` // In-game nickname.

	AuthmeBindingID *uint64 `gorm:"index"` // Linked binding, nil when unlinked.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
