package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
jwt:
  secret_key: test
sync:
  interval: 30s
  concurrency: 8
data_sources:
  - name: github
    type: statuspage
    base_url: https://www.githubstatus.com
  - name: legacy
    type: pingdom
    base_url: https://legacy.example.com
    is_active: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
	assert.True(t, cfg.Sync.RunOnStart, "unset keys keep defaults")
	assert.Equal(t, "8080", cfg.Server.Port)

	require.Len(t, cfg.DataSources, 2)
	assert.True(t, cfg.DataSources[0].Active())
	assert.False(t, cfg.DataSources[1].Active())
	assert.Equal(t, "pingdom", cfg.DataSources[1].Type, "unknown connector types are accepted")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
jwt:
  secret_key: from-file
`)
	t.Setenv("RADAR_JWT__SECRET_KEY", "from-env")
	t.Setenv("RADAR_SYNC__RUN_ON_START", "false")
	t.Setenv("RADAR_SERVER__PORT", "9000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.SecretKey)
	assert.False(t, cfg.Sync.RunOnStart)
	assert.Equal(t, "9000", cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Database.URL = "postgres://localhost/radar"
		cfg.JWT.SecretKey = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"postgres needs url", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, "database.driver"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"missing secret", func(c *Config) { c.JWT.SecretKey = "" }, "jwt.secret_key"},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }, "sync.interval"},
		{"zero concurrency", func(c *Config) { c.Sync.Concurrency = 0 }, "sync.concurrency"},
		{"relative alerts webhook", func(c *Config) { c.Alerts.WebhookURL = "hooks/abc" }, "alerts.webhook_url"},
		{"duplicate source", func(c *Config) {
			c.DataSources = []DataSourceConfig{
				{Name: "a", Type: "gcp", BaseURL: "https://a"},
				{Name: "a", Type: "gcp", BaseURL: "https://b"},
			}
		}, "duplicated"},
		{"relative base url", func(c *Config) {
			c.DataSources = []DataSourceConfig{{Name: "a", Type: "gcp", BaseURL: "status.example.com"}}
		}, "base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
