package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUUID = "28b8d3ca-fb5f-59d9-8090-bfdbd6d07a71"

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 300, cfg.ValidTimeDeltaSeconds)
	assert.Equal(t, []string{"en", "de"}, cfg.Languages)
	assert.Equal(t, DatabaseSQLite, cfg.Database.Type)
	assert.True(t, cfg.Tasks.Enabled)
	assert.Equal(t, 5*time.Second, cfg.TaskConfig().PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.TaskConfig().ClaimTimeout)
	assert.Equal(t, 300*time.Second, cfg.Federation().ValidTimeDelta)
	assert.Equal(t, 256, cfg.Federation().SchemaCacheSize)
	assert.Equal(t, 10*time.Minute, cfg.Federation().SchemaCacheTTL)

	// no federation UUID yet
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sampledb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
federationUUID: `+testUUID+`
validTimeDeltaSeconds: 60
languages: [en, fr]
database:
  type: postgres
  dsn: host=localhost dbname=sampledb
tasks:
  concurrency: 4
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, testUUID, cfg.FederationUUID)
	assert.Equal(t, time.Minute, cfg.Federation().ValidTimeDelta)
	assert.Equal(t, []string{"en", "fr"}, cfg.Federation().Languages)
	assert.Equal(t, DatabasePostgres, cfg.Database.Type)
	assert.Equal(t, 4, cfg.TaskConfig().Concurrency)
	// unset keys keep their defaults
	assert.Equal(t, 3, cfg.Tasks.MaxRetries)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("languages: [en"), 0o600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name  string
		envs  map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			envs: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		{
			name: "custom values",
			envs: map[string]string{
				"SAMPLEDB_FEDERATION_UUID":        testUUID,
				"SAMPLEDB_VALID_TIME_DELTA":       "10",
				"SAMPLEDB_ENABLE_ELN_FILE_IMPORT": "true",
				"SAMPLEDB_LANGUAGES":              "en, de ,fr",
				"SAMPLEDB_DATABASE_TYPE":          "mysql",
				"SAMPLEDB_DATABASE_DSN":           "user@/sampledb",
				"SAMPLEDB_TASK_CONCURRENCY":       "8",
				"SAMPLEDB_TASK_ENABLED":           "false",
				"SAMPLEDB_SCHEMA_CACHE_SIZE":      "0",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, testUUID, cfg.FederationUUID)
				assert.Equal(t, 10, cfg.ValidTimeDeltaSeconds)
				assert.True(t, cfg.EnableELNFileImport)
				assert.Equal(t, []string{"en", "de", "fr"}, cfg.Languages)
				assert.Equal(t, DatabaseMySQL, cfg.Database.Type)
				assert.Equal(t, "user@/sampledb", cfg.Database.DSN)
				assert.Equal(t, 8, cfg.Tasks.Concurrency)
				assert.False(t, cfg.Tasks.Enabled)
				assert.Equal(t, 0, cfg.Federation().SchemaCacheSize)
			},
		},
		{
			name: "invalid numbers fall back to defaults",
			envs: map[string]string{
				"SAMPLEDB_VALID_TIME_DELTA":           "soon",
				"SAMPLEDB_TASK_CONCURRENCY":           "0",
				"SAMPLEDB_TASK_POLL_INTERVAL_SECONDS": "-1",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 300, cfg.ValidTimeDeltaSeconds)
				assert.Equal(t, 2, cfg.Tasks.Concurrency)
				assert.Equal(t, 5, cfg.Tasks.PollIntervalSeconds)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envs {
				t.Setenv(k, v)
			}
			cfg := Default()
			cfg.ApplyEnv()
			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.FederationUUID = testUUID
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(cfg *Config)
		want   string
	}{
		{"malformed uuid", func(cfg *Config) { cfg.FederationUUID = "not-a-uuid" }, "invalid federationUUID"},
		{"negative delta", func(cfg *Config) { cfg.ValidTimeDeltaSeconds = -1 }, "validTimeDeltaSeconds"},
		{"bad language", func(cfg *Config) { cfg.Languages = []string{"en", "!!"} }, "invalid language code"},
		{"bad database", func(cfg *Config) { cfg.Database.Type = "oracle" }, "unsupported database type"},
		{"empty dsn", func(cfg *Config) { cfg.Database.DSN = "" }, "database.dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
