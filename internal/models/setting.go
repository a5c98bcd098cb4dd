package models

import (
	"encoding/json"
	"time"
)

// Setting stores one site configuration entry, keyed by a known settings key.
type Setting struct {
	Key       string          `gorm:"type:varchar(255);primaryKey"` // Settings key.
	Value     json.RawMessage `gorm:"type:text"`                    // JSON-encoded value.
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime"`      // Last update timestamp.
}
