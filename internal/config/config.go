// Package config provides configuration management for Angel AI.
// It loads settings from environment variables with the ANGEL_ prefix
// and provides sensible defaults for all configuration options.
//
// Persona settings (e.g., persona_name) are persisted to the settings
// table in the database. LoadConfigFromDB reads from the database first
// and falls back to environment variables. SaveConfig writes persona
// settings back to the database.
package config

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Angel AI application.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Security SecurityConfig
	Chat     ChatConfig
	Fetch    FetchConfig
	Persona  PersonaConfig
	Backup   BackupConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 8787)
	Host string // Server host (default: 127.0.0.1)

	RateLimitRPS   float64 // Sustained requests per second per client (default: 10)
	RateLimitBurst int     // Burst allowance per client (default: 20)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine: sqlite, postgres (default: sqlite)
	DataPath      string // Path to the data directory for SQLite (default: ./data)
	PostgresDSN   string // Connection string when StorageEngine is postgres
	MigrationsDir string // Directory with SQL migration files (default: ./migrations)
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	SessionSecret string        // HMAC key for session tokens
	SessionTTL    time.Duration // Session token lifetime (default: 168h)
}

// ChatConfig contains chat behavior settings.
type ChatConfig struct {
	// TypingDelay is the pause before a reply is written, imitating the
	// persona composing its message.
	TypingDelay time.Duration
}

// FetchConfig contains URL scraper settings.
type FetchConfig struct {
	Timeout time.Duration // Per-request timeout (default: 15s)
}

// PersonaConfig contains persona settings that persist across restarts.
// These settings are stored in the settings table in the database.
type PersonaConfig struct {
	// Name is the display name of the persona.
	// Env var: ANGEL_PERSONA_NAME
	// Database key: persona_name
	Name string
}

// BackupConfig contains settings for the angel-backup tool. Backups only
// apply to the SQLite engine.
type BackupConfig struct {
	BackupPath string        // Directory for backup files (default: ./backups)
	Interval   time.Duration // Time between scheduled backups (default: 1h)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the ANGEL_ prefix. Persona
// settings are loaded from environment variables only; use
// LoadConfigFromDB to also read persisted values from the database.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	return cfg, nil
}

// LoadConfigFromDB loads configuration from both environment variables
// and the database. The database value takes precedence over the
// environment variable for persona settings.
//
// Returns an error if db is nil.
func LoadConfigFromDB(db *sql.DB) (*Config, error) {
	if db == nil {
		return nil, errors.New("config: database connection is required")
	}

	cfg := buildBaseConfig()

	name, err := getSetting(db, "persona_name")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config: failed to load persona_name from database: %w", err)
	}
	if name != "" {
		cfg.Persona.Name = name
	}

	return cfg, nil
}

// SaveConfig persists persona settings to the settings table with upsert
// semantics so they survive application restarts.
//
// Returns an error if db is nil.
func (c *Config) SaveConfig(db *sql.DB) error {
	if db == nil {
		return errors.New("config: database connection is required")
	}

	if err := setSetting(db, "persona_name", c.Persona.Name); err != nil {
		return fmt.Errorf("config: failed to save persona_name: %w", err)
	}
	return nil
}

// getSetting retrieves a single setting value by key from the settings
// table. Returns sql.ErrNoRows when the key does not exist.
func getSetting(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// setSetting writes a key-value pair to the settings table using upsert
// semantics.
func setSetting(db *sql.DB, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// buildBaseConfig constructs a Config with values from environment
// variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("ANGEL_PORT", 8787),
			Host:           getEnv("ANGEL_HOST", "127.0.0.1"),
			RateLimitRPS:   float64(getEnvInt("ANGEL_RATE_LIMIT_RPS", 10)),
			RateLimitBurst: getEnvInt("ANGEL_RATE_LIMIT_BURST", 20),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("ANGEL_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("ANGEL_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("ANGEL_POSTGRES_DSN", ""),
			MigrationsDir: getEnv("ANGEL_MIGRATIONS_DIR", "./migrations"),
		},
		Security: SecurityConfig{
			SessionSecret: getEnv("ANGEL_SESSION_SECRET", ""),
			SessionTTL:    time.Duration(getEnvInt("ANGEL_SESSION_TTL_HOURS", 168)) * time.Hour,
		},
		Chat: ChatConfig{
			TypingDelay: time.Duration(getEnvInt("ANGEL_TYPING_DELAY_MS", 1500)) * time.Millisecond,
		},
		Fetch: FetchConfig{
			Timeout: time.Duration(getEnvInt("ANGEL_FETCH_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Persona: PersonaConfig{
			Name: getEnv("ANGEL_PERSONA_NAME", "Angel AI"),
		},
		Backup: BackupConfig{
			BackupPath: getEnv("ANGEL_BACKUP_PATH", "./backups"),
			Interval:   time.Duration(getEnvInt("ANGEL_BACKUP_INTERVAL_MINUTES", 60)) * time.Minute,
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a
// default value. If the variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
