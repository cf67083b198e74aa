package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := NewConfig("test")
	cfg.API.ClientID = "id"
	cfg.API.ClientSecret = "secret"
	cfg.API.AuthURL = "https://auth.example.com/token"
	cfg.API.BaseURL = "https://api.example.com"
	return cfg
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig("posbridge")

	assert.Equal(t, "posbridge", cfg.Name)
	assert.Equal(t, []string{"article", "customer", "sale", "shop", "stock"}, cfg.Sync.Entities)
	assert.Equal(t, []string{"daily_sales", "warehouse_stock"}, cfg.Sync.Aggregates)
	assert.Equal(t, 500, cfg.Sync.PageSize)
	assert.Equal(t, 50, cfg.Sync.SampleSize)
	assert.Equal(t, 10*time.Minute, cfg.Sync.TimeBudget)
	assert.Equal(t, 3, cfg.Reliability.RetryAttempts)
	assert.Equal(t, 60*time.Second, cfg.API.TokenSkew)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Name = "" }},
		{"missing client id", func(c *Config) { c.API.ClientID = "" }},
		{"missing client secret", func(c *Config) { c.API.ClientSecret = "" }},
		{"missing auth url", func(c *Config) { c.API.AuthURL = "" }},
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }},
		{"negative token skew", func(c *Config) { c.API.TokenSkew = -time.Second }},
		{"no entities", func(c *Config) { c.Sync.Entities = nil }},
		{"zero page size", func(c *Config) { c.Sync.PageSize = 0 }},
		{"zero sample size", func(c *Config) { c.Sync.SampleSize = 0 }},
		{"zero time budget", func(c *Config) { c.Sync.TimeBudget = 0 }},
		{"zero retry attempts", func(c *Config) { c.Reliability.RetryAttempts = 0 }},
		{"negative rate limit", func(c *Config) { c.Reliability.RateLimitPerSec = -1 }},
		{"unknown aggregate", func(c *Config) { c.Sync.Aggregates = []string{"monthly_sales"} }},
		{"aggregate source not synced", func(c *Config) { c.Sync.Entities = []string{"article", "stock"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestHasEntity(t *testing.T) {
	cfg := validConfig()
	assert.True(t, cfg.HasEntity("article"))
	assert.False(t, cfg.HasEntity("warehouse"))
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("POSBRIDGE_TEST_SECRET", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: from-file
api:
  client_id: id
  client_secret: ${POSBRIDGE_TEST_SECRET}
  auth_url: https://auth.example.com/token
  base_url: https://api.example.com
sync:
  page_size: 25
`), 0o644))

	cfg := NewConfig("default")
	require.NoError(t, Load(path, cfg))

	assert.Equal(t, "from-file", cfg.Name)
	assert.Equal(t, "s3cret", cfg.API.ClientSecret)
	assert.Equal(t, 25, cfg.Sync.PageSize)
}

func TestLoadMissingFile(t *testing.T) {
	cfg := NewConfig("default")
	assert.Error(t, Load(filepath.Join(t.TempDir(), "nope.yaml"), cfg))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := validConfig()
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, cfg))

	loaded := NewConfig("other")
	require.NoError(t, Load(path, loaded))
	assert.Equal(t, cfg.API.ClientID, loaded.API.ClientID)
	assert.Equal(t, cfg.Sync.PageSize, loaded.Sync.PageSize)
}
