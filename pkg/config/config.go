// Package config provides the unified configuration for the posbridge
// connector. A single Config structure carries everything one invocation
// needs; all values are injected from the environment or a YAML file and
// validated at startup, never hard-coded in the pipeline.
//
// The configuration is organized into logical sections:
//   - API: credentials and endpoints of the source POS API
//   - Sync: entities, page size, sampling, invocation time budget
//   - Reliability: retry logic and rate limiting
//   - Timeouts: HTTP timeouts
//   - Observability: metrics and logging
package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/posbridge/pkg/aggregate"
)

// Config is the single configuration structure for a connector invocation.
type Config struct {
	// Name identifies the connector instance
	Name string `yaml:"name" json:"name"`

	// API configures the source POS API
	API APIConfig `yaml:"api" json:"api"`

	// Sync configures extraction behavior
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Reliability settings for error handling and resilience
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Timeouts define HTTP timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// APIConfig contains credentials and endpoints of the source POS API.
// Credentials live only for the duration of one invocation.
type APIConfig struct {
	// ClientID is the OAuth-style client identifier
	ClientID string `yaml:"client_id" json:"client_id"`
	// ClientSecret is the OAuth-style client secret
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	// AuthURL is the token endpoint
	AuthURL string `yaml:"auth_url" json:"auth_url"`
	// BaseURL is the fallback data API base URL; the auth response may
	// redirect to a different regional endpoint
	BaseURL string `yaml:"base_url" json:"base_url"`
	// TokenSkew is subtracted from the token expiry when deciding whether
	// to re-authenticate
	TokenSkew time.Duration `yaml:"token_skew" json:"token_skew"`
}

// SyncConfig contains extraction settings.
type SyncConfig struct {
	// Entities lists the entity types known to this connector
	Entities []string `yaml:"entities" json:"entities"`
	// Aggregates names the aggregate definitions to compute during sync
	Aggregates []string `yaml:"aggregates" json:"aggregates"`
	// PageSize bounds the number of records requested per page
	PageSize int `yaml:"page_size" json:"page_size"`
	// SampleSize bounds the records fetched for schema inference
	SampleSize int `yaml:"sample_size" json:"sample_size"`
	// TimeBudget is the per-invocation wall-clock budget; checked at page
	// boundaries only
	TimeBudget time.Duration `yaml:"time_budget" json:"time_budget"`
	// SchemaDir is the directory holding predefined entity schema files
	SchemaDir string `yaml:"schema_dir" json:"schema_dir"`
}

// ReliabilityConfig contains reliability and error handling settings.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum attempts per page fetch
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// RateLimitPerSec limits API requests per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
}

// TimeoutConfig contains HTTP timeout settings.
type TimeoutConfig struct {
	// Request timeout for individual API calls
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
	// Idle timeout before closing inactive connections
	Idle time.Duration `yaml:"idle" json:"idle"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// EnableMetrics activates Prometheus metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a Config with production defaults. Credentials and
// endpoints have no defaults and must be supplied.
func NewConfig(name string) *Config {
	return &Config{
		Name: name,
		API: APIConfig{
			TokenSkew: 60 * time.Second,
		},
		Sync: SyncConfig{
			Entities:   []string{"article", "customer", "sale", "shop", "stock"},
			Aggregates: []string{"daily_sales", "warehouse_stock"},
			PageSize:   500,
			SampleSize: 50,
			TimeBudget: 10 * time.Minute,
			SchemaDir:  "schemas",
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   30 * time.Second,
			RateLimitPerSec: 0,
		},
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			Connection: 10 * time.Second,
			Idle:       90 * time.Second,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			LogLevel:      "info",
		},
	}
}

// Validate validates the configuration for correctness. Connectors call this
// after loading configuration to catch errors before any network call.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.API.ClientID == "" {
		return fmt.Errorf("api.client_id is required")
	}
	if c.API.ClientSecret == "" {
		return fmt.Errorf("api.client_secret is required")
	}
	if c.API.AuthURL == "" {
		return fmt.Errorf("api.auth_url is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.TokenSkew < 0 {
		return fmt.Errorf("api.token_skew cannot be negative")
	}
	if len(c.Sync.Entities) == 0 {
		return fmt.Errorf("sync.entities cannot be empty")
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be positive")
	}
	if c.Sync.SampleSize <= 0 {
		return fmt.Errorf("sync.sample_size must be positive")
	}
	if c.Sync.TimeBudget <= 0 {
		return fmt.Errorf("sync.time_budget must be positive")
	}
	if c.Reliability.RetryAttempts < 1 {
		return fmt.Errorf("reliability.retry_attempts must be at least 1")
	}
	if c.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("reliability.rate_limit_per_sec cannot be negative")
	}

	// An aggregate whose source entity is never synced would silently emit
	// nothing, so reject the mapping up front.
	builtin := aggregate.Builtin()
	for _, name := range c.Sync.Aggregates {
		def, ok := builtin[name]
		if !ok {
			return fmt.Errorf("sync.aggregates: unknown aggregate %q", name)
		}
		if !c.HasEntity(def.Source) {
			return fmt.Errorf("sync.aggregates: %q requires entity %q in sync.entities", name, def.Source)
		}
	}
	return nil
}

// HasEntity reports whether the entity is configured for this connector
func (c *Config) HasEntity(entity string) bool {
	for _, e := range c.Sync.Entities {
		if e == entity {
			return true
		}
	}
	return false
}
