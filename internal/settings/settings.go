// Package settings serves database-backed site configuration through an
// in-memory snapshot, so request paths never hit the settings table.
package settings

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
)

// Setting keys and defaults.
const (
	// SiteNameKey is the key for the public site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback site name.
	DefaultSiteName = "Craftbound"
	// RegistrationOpenKey toggles self-service registration.
	RegistrationOpenKey = "REGISTRATION_OPEN"
	// DefaultRegistrationOpen is the fallback registration toggle.
	DefaultRegistrationOpen = true
	// ServerAddressKey is the key for the Minecraft server address shown to players.
	ServerAddressKey = "SERVER_ADDRESS"
	// DiscordInviteKey is the key for the community Discord invite URL.
	DiscordInviteKey = "DISCORD_INVITE"
)

// Keys lists every setting key the portal recognizes.
func Keys() []string {
	return []string{SiteNameKey, RegistrationOpenKey, ServerAddressKey, DiscordInviteKey}
}

// KnownKey reports whether key belongs to the recognized set.
func KnownKey(key string) bool {
	key = strings.TrimSpace(key)
	for _, known := range Keys() {
		if known == key {
			return true
		}
	}
	return false
}

// snapshot holds the in-memory settings values.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

// globalSnapshot stores the latest snapshot atomically.
var globalSnapshot atomic.Value // stores snapshot

func init() {
	globalSnapshot.Store(snapshot{values: map[string]json.RawMessage{}})
}

// store replaces the in-memory snapshot.
func store(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		copied := make([]byte, len(v))
		copy(copied, v)
		next[key] = copied
	}
	globalSnapshot.Store(snapshot{updatedAt: updatedAt.UTC(), values: next})
}

// load returns the current snapshot with safe defaults.
func load() snapshot {
	v := globalSnapshot.Load()
	snap, ok := v.(snapshot)
	if !ok || snap.values == nil {
		return snapshot{values: map[string]json.RawMessage{}}
	}
	return snap
}

// UpdatedAt returns the last update timestamp of the snapshot.
func UpdatedAt() time.Time {
	return load().updatedAt
}

// Value returns a copy of the raw value for a key.
func Value(key string) (json.RawMessage, bool) {
	snap := load()
	val, ok := snap.values[strings.TrimSpace(key)]
	if !ok {
		return nil, false
	}
	copied := make([]byte, len(val))
	copy(copied, val)
	return copied, true
}

// StringValue returns a string setting, falling back to def.
func StringValue(key, def string) string {
	raw, ok := Value(key)
	if !ok {
		return def
	}
	var out string
	if errUnmarshal := json.Unmarshal(raw, &out); errUnmarshal != nil {
		return def
	}
	if strings.TrimSpace(out) == "" {
		return def
	}
	return out
}

// BoolValue returns a boolean setting, falling back to def.
func BoolValue(key string, def bool) bool {
	raw, ok := Value(key)
	if !ok {
		return def
	}
	var out bool
	if errUnmarshal := json.Unmarshal(raw, &out); errUnmarshal != nil {
		return def
	}
	return out
}

// SiteName returns the configured site name.
func SiteName() string {
	return StringValue(SiteNameKey, DefaultSiteName)
}

// RegistrationOpen reports whether self-service registration is enabled.
func RegistrationOpen() bool {
	return BoolValue(RegistrationOpenKey, DefaultRegistrationOpen)
}

// ServerAddress returns the Minecraft server address, empty when unset.
func ServerAddress() string {
	return StringValue(ServerAddressKey, "")
}

// DiscordInvite returns the Discord invite URL, empty when unset.
func DiscordInvite() string {
	return StringValue(DiscordInviteKey, "")
}
