package models

import (
	"time"

	"gorm.io/datatypes"
)

// Binding status values accepted by the ledger.
const (
	// BindingStatusActive marks a normally usable binding.
	BindingStatusActive = "active"
	// BindingStatusSuspended marks a binding blocked by an operator.
	BindingStatusSuspended = "suspended"
)

// AuthmeBinding links a portal user to one AuthMe account.
//
// Usernames are unique per user case-insensitively via AuthmeUsernameLower.
// Primary status is not stored here; it is derived from
// Profile.PrimaryAuthmeBindingID.
type AuthmeBinding struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_authme_bindings_user_username,priority:1;index"` // Owning user ID.

	AuthmeUsername      string `gorm:"type:text;not null"`                                                        // Username as stored by AuthMe.
	AuthmeUsernameLower string `gorm:"type:text;not null;uniqueIndex:idx_authme_bindings_user_username,priority:2"` // Lowercased uniqueness key.
	AuthmeRealname      string `gorm:"type:text"`                                                                 // Realname reported by AuthMe.
	AuthmeUUID          *string `gorm:"type:text;index"`                                                          // Player UUID, resolved lazily.

	BoundAt time.Time `gorm:"not null"` // Time the link was first created.

	Status   string         `gorm:"type:text;not null;default:'active'"` // Binding status value.
	Notes    string         `gorm:"type:text"`                           // Operator notes.
	Metadata datatypes.JSON `gorm:"type:jsonb"`                          // Free-form metadata payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ValidBindingStatus reports whether a status value is accepted by the ledger.
func ValidBindingStatus(status string) bool {
	switch status {
	case BindingStatusActive, BindingStatusSuspended:
		return true
	default:
		return false
	}
}
