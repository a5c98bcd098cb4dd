package models

import (
	"time"

	"gorm.io/datatypes"
)

// Binding history actions.
const (
	// BindingActionManualEntry records a bind or re-bind of an AuthMe account.
	BindingActionManualEntry = "MANUAL_ENTRY"
	// BindingActionPrimarySet records a binding becoming primary.
	BindingActionPrimarySet = "PRIMARY_SET"
	// BindingActionPrimaryUnset records a binding losing primary status.
	BindingActionPrimaryUnset = "PRIMARY_UNSET"
	// BindingActionTransfer records an ownership transfer between users.
	BindingActionTransfer = "TRANSFER"
	// BindingActionUpdate records a field-level edit of a binding.
	BindingActionUpdate = "UPDATE"
	// BindingActionUnbind records a binding deletion.
	BindingActionUnbind = "UNBIND"
)

// AuthmeBindingHistory is an append-only audit record of binding mutations.
//
// Rows are never updated or deleted. BindingID intentionally carries no
// foreign key so entries survive the deletion of their binding.
type AuthmeBindingHistory struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BindingID *uint64 `gorm:"index"`          // Binding the entry refers to, kept after deletion.
	UserID    uint64  `gorm:"not null;index"` // User the binding belonged to at mutation time.

	OperatorID *uint64 `gorm:"index"` // Acting user, nil for system actions.

	AuthmeUsername string  `gorm:"type:text;not null"` // Username snapshot at mutation time.
	AuthmeRealname string  `gorm:"type:text"`          // Realname snapshot at mutation time.
	AuthmeUUID     *string `gorm:"type:text"`          // UUID snapshot at mutation time.

	Action  string         `gorm:"type:text;not null;index"` // Mutation action name.
	Reason  string         `gorm:"type:text"`                // Optional operator-supplied reason.
	Payload datatypes.JSON `gorm:"type:jsonb"`               // Action-specific payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
