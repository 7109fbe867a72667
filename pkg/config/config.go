// Package config loads the settings of a federation node from a YAML file
// and SAMPLEDB_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sampledb/sampledb/pkg/federation"
	"github.com/sampledb/sampledb/pkg/schemas"
	"github.com/sampledb/sampledb/pkg/tasks"
)

// Supported database types.
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
	DatabaseMySQL    = "mysql"
)

// Config is the node configuration.
type Config struct {
	// FederationUUID identifies this component among its peers.
	FederationUUID        string         `yaml:"federationUUID" json:"federationUUID"`
	ValidTimeDeltaSeconds int            `yaml:"validTimeDeltaSeconds" json:"validTimeDeltaSeconds"`
	EnableELNFileImport   bool           `yaml:"enableELNFileImport" json:"enableELNFileImport"`
	Languages             []string       `yaml:"languages" json:"languages"`
	Listen                string         `yaml:"listen" json:"listen"`
	Database              DatabaseConfig `yaml:"database" json:"database"`
	Tasks                 TasksConfig    `yaml:"tasks" json:"tasks"`
	SchemaCache           CacheConfig    `yaml:"schemaCache" json:"schemaCache"`
}

// DatabaseConfig selects the database driver and connection string.
type DatabaseConfig struct {
	Type string `yaml:"type" json:"type"`
	DSN  string `yaml:"dsn" json:"dsn"`
}

// TasksConfig mirrors tasks.Config with file-friendly units.
type TasksConfig struct {
	Concurrency         int  `yaml:"concurrency" json:"concurrency"`
	MaxRetries          int  `yaml:"maxRetries" json:"maxRetries"`
	PollIntervalSeconds int  `yaml:"pollInterval" json:"pollInterval"`
	ClaimTimeoutMinutes int  `yaml:"claimTimeout" json:"claimTimeout"`
	RetentionDays       int  `yaml:"retentionDays" json:"retentionDays"`
	Enabled             bool `yaml:"enabled" json:"enabled"`
}

// CacheConfig sizes the schema validation cache. Size 0 disables it.
type CacheConfig struct {
	Size       int `yaml:"size" json:"size"`
	TTLSeconds int `yaml:"ttlSeconds" json:"ttlSeconds"`
}

// Default returns the default configuration. FederationUUID is left empty and
// must be set before Validate passes.
func Default() *Config {
	t := tasks.DefaultConfig()
	f := federation.DefaultConfig()
	return &Config{
		ValidTimeDeltaSeconds: int(federation.DefaultValidTimeDelta / time.Second),
		Languages:             []string{"en", "de"},
		Listen:                ":8080",
		Database: DatabaseConfig{
			Type: DatabaseSQLite,
			DSN:  "sampledb.db",
		},
		Tasks: TasksConfig{
			Concurrency:         t.Concurrency,
			MaxRetries:          t.MaxRetries,
			PollIntervalSeconds: int(t.PollInterval / time.Second),
			ClaimTimeoutMinutes: int(t.ClaimTimeout / time.Minute),
			RetentionDays:       t.RetentionDays,
			Enabled:             t.Enabled,
		},
		SchemaCache: CacheConfig{
			Size:       f.SchemaCacheSize,
			TTLSeconds: int(f.SchemaCacheTTL / time.Second),
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults.
// If the file does not exist, the default configuration is returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg.
// SAMPLEDB_FEDERATION_UUID, SAMPLEDB_VALID_TIME_DELTA, SAMPLEDB_ENABLE_ELN_FILE_IMPORT,
// SAMPLEDB_LANGUAGES (comma separated), SAMPLEDB_LISTEN, SAMPLEDB_DATABASE_TYPE,
// SAMPLEDB_DATABASE_DSN, SAMPLEDB_TASK_CONCURRENCY, SAMPLEDB_TASK_MAX_RETRIES,
// SAMPLEDB_TASK_POLL_INTERVAL_SECONDS, SAMPLEDB_TASK_CLAIM_TIMEOUT_MINUTES,
// SAMPLEDB_TASK_RETENTION_DAYS, SAMPLEDB_TASK_ENABLED, SAMPLEDB_SCHEMA_CACHE_SIZE,
// SAMPLEDB_SCHEMA_CACHE_TTL_SECONDS
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SAMPLEDB_FEDERATION_UUID"); v != "" {
		c.FederationUUID = v
	}
	if v := os.Getenv("SAMPLEDB_VALID_TIME_DELTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.ValidTimeDeltaSeconds = n
		}
	}
	if v := os.Getenv("SAMPLEDB_ENABLE_ELN_FILE_IMPORT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EnableELNFileImport = b
		}
	}
	if v := os.Getenv("SAMPLEDB_LANGUAGES"); v != "" {
		var langs []string
		for _, code := range strings.Split(v, ",") {
			if code = strings.TrimSpace(code); code != "" {
				langs = append(langs, code)
			}
		}
		if len(langs) > 0 {
			c.Languages = langs
		}
	}
	if v := os.Getenv("SAMPLEDB_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("SAMPLEDB_DATABASE_TYPE"); v != "" {
		c.Database.Type = v
	}
	if v := os.Getenv("SAMPLEDB_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv("SAMPLEDB_TASK_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Tasks.Concurrency = n
		}
	}
	if v := os.Getenv("SAMPLEDB_TASK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Tasks.MaxRetries = n
		}
	}
	if v := os.Getenv("SAMPLEDB_TASK_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Tasks.PollIntervalSeconds = n
		}
	}
	if v := os.Getenv("SAMPLEDB_TASK_CLAIM_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Tasks.ClaimTimeoutMinutes = n
		}
	}
	if v := os.Getenv("SAMPLEDB_TASK_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Tasks.RetentionDays = n
		}
	}
	if v := os.Getenv("SAMPLEDB_TASK_ENABLED"); v != "" {
		c.Tasks.Enabled, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("SAMPLEDB_SCHEMA_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.SchemaCache.Size = n
		}
	}
	if v := os.Getenv("SAMPLEDB_SCHEMA_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.SchemaCache.TTLSeconds = n
		}
	}
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.FederationUUID == "" {
		return fmt.Errorf("federationUUID is required")
	}
	if _, err := uuid.Parse(c.FederationUUID); err != nil {
		return fmt.Errorf("invalid federationUUID %q: %w", c.FederationUUID, err)
	}
	if c.ValidTimeDeltaSeconds < 0 {
		return fmt.Errorf("validTimeDeltaSeconds must not be negative")
	}
	for _, code := range c.Languages {
		if !schemas.ValidLanguageCode(code) {
			return fmt.Errorf("invalid language code %q", code)
		}
	}
	switch c.Database.Type {
	case DatabaseSQLite, DatabasePostgres, DatabaseMySQL:
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	return nil
}

// Federation returns the engine settings.
func (c *Config) Federation() federation.Config {
	return federation.Config{
		ValidTimeDelta:  time.Duration(c.ValidTimeDeltaSeconds) * time.Second,
		Languages:       append([]string(nil), c.Languages...),
		SchemaCacheSize: c.SchemaCache.Size,
		SchemaCacheTTL:  time.Duration(c.SchemaCache.TTLSeconds) * time.Second,
	}
}

// TaskConfig returns the task service settings.
func (c *Config) TaskConfig() tasks.Config {
	return tasks.Config{
		Concurrency:   c.Tasks.Concurrency,
		MaxRetries:    c.Tasks.MaxRetries,
		PollInterval:  time.Duration(c.Tasks.PollIntervalSeconds) * time.Second,
		ClaimTimeout:  time.Duration(c.Tasks.ClaimTimeoutMinutes) * time.Minute,
		RetentionDays: c.Tasks.RetentionDays,
		Enabled:       c.Tasks.Enabled,
	}
}
