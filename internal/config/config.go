package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Listen string `yaml:"listen"` // Listen address, e.g. ":8080".
}

// DatabaseConfig holds the portal store connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // Postgres or SQLite DSN.
}

// AuthmeConfig holds settings for the external AuthMe data source.
type AuthmeConfig struct {
	DSN       string `yaml:"dsn"`        // MySQL, Postgres or SQLite DSN of the AuthMe database.
	Table     string `yaml:"table"`      // AuthMe table name, defaults to "authme".
	RedisAddr string `yaml:"redis-addr"` // Optional Redis cache address; cache disabled when empty.
	RedisDB   int    `yaml:"redis-db"`   // Redis database index.
	CacheTTL  int    `yaml:"cache-ttl"`  // Cache TTL in seconds.
	Timeout   int    `yaml:"timeout"`    // Per-lookup timeout in seconds.
}

// LuckPermsConfig holds settings for the permissions service REST API.
type LuckPermsConfig struct {
	BaseURL string `yaml:"base-url"` // REST API base URL; client disabled when empty.
	APIKey  string `yaml:"api-key"`  // Optional bearer key for the REST API.
	Timeout int    `yaml:"timeout"`  // Request timeout in seconds.
}

// JWTConfig holds session token settings.
type JWTConfig struct {
	Secret      string `yaml:"secret"`       // HS256 signing secret.
	ExpiryHours int    `yaml:"expiry-hours"` // Token lifetime in hours.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`       // logrus level name.
	File       string `yaml:"file"`        // Log file path; stdout only when empty.
	MaxSizeMB  int    `yaml:"max-size"`    // Rotate after this many megabytes.
	MaxBackups int    `yaml:"max-backups"` // Rotated files to keep.
	MaxAgeDays int    `yaml:"max-age"`     // Days to keep rotated files.
}

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Authme    AuthmeConfig    `yaml:"authme"`
	LuckPerms LuckPermsConfig `yaml:"luckperms"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
}

// DefaultConfigPath is used when no path is supplied.
const DefaultConfigPath = "config.yaml"

// ResolvePath returns the effective config path, honoring PORTAL_CONFIG.
func ResolvePath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv("PORTAL_CONFIG")); env != "" {
		return env
	}
	return DefaultConfigPath
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(ResolvePath(path))
	if errRead != nil {
		return nil, fmt.Errorf("config: read: %w", errRead)
	}

	cfg := &Config{}
	if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse: %w", errUnmarshal)
	}
	cfg.applyDefaults()

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, fmt.Errorf("config: jwt.secret is required")
	}
	return cfg, nil
}

// applyDefaults fills unset fields with safe defaults.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = ":8080"
	}
	if strings.TrimSpace(c.Authme.Table) == "" {
		c.Authme.Table = "authme"
	}
	if c.Authme.CacheTTL <= 0 {
		c.Authme.CacheTTL = 60
	}
	if c.Authme.Timeout <= 0 {
		c.Authme.Timeout = 5
	}
	if c.LuckPerms.Timeout <= 0 {
		c.LuckPerms.Timeout = 5
	}
	if c.JWT.ExpiryHours <= 0 {
		c.JWT.ExpiryHours = 24
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 30
	}
}

// AuthmeLookupTimeout returns the bridge lookup timeout as a duration.
func (c *Config) AuthmeLookupTimeout() time.Duration {
	return time.Duration(c.Authme.Timeout) * time.Second
}
