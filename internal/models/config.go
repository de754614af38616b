// Package models - Service configuration and operational settings.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, security, etc.)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early
// - Security-first approach with safe defaults
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeJSON     = "json"
	StorageTypeSQLite   = "sqlite"
	StorageTypePostgres = "postgres"
)

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Scan          ScanConfig          `yaml:"scan" json:"scan"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Path     string         `yaml:"path" json:"path"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type SecurityConfig struct {
	// EnableAuth requires a valid API key on scan endpoints. When false,
	// requests are admitted anonymously and rate limited by client IP.
	EnableAuth bool `yaml:"enable_auth" json:"enable_auth"`

	// BootstrapKey, when set, is seeded into storage at startup so a fresh
	// deployment has one working admin credential. Must match the raw key
	// format.
	BootstrapKey string `yaml:"bootstrap_key" json:"bootstrap_key"`

	// BootstrapKeyTier is the tier assigned to the bootstrap key.
	BootstrapKeyTier string `yaml:"bootstrap_key_tier" json:"bootstrap_key_tier"`
}

type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// DefaultTier applies to unauthenticated clients.
	DefaultTier string `yaml:"default_tier" json:"default_tier"`

	Tiers TierTable `yaml:"tiers" json:"tiers"`

	// CleanupInterval is how often idle per-client state is swept.
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`

	// IdleEviction is how long a client must be idle before its quota and
	// bucket state is dropped.
	IdleEviction time.Duration `yaml:"idle_eviction" json:"idle_eviction"`
}

type ScanConfig struct {
	// BannedSubstrings denies any prompt containing one of these values.
	BannedSubstrings []string `yaml:"banned_substrings" json:"banned_substrings"`

	// BannedPatterns are regular expressions evaluated against the prompt.
	BannedPatterns []string `yaml:"banned_patterns" json:"banned_patterns"`

	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Type: StorageTypeJSON,
			Path: "./data/api_keys.json",
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Security: SecurityConfig{
			EnableAuth:       true,
			BootstrapKeyTier: string(TierEnterprise),
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			DefaultTier:     string(TierFree),
			Tiers:           DefaultTierTable(),
			CleanupInterval: 5 * time.Minute,
			IdleEviction:    time.Hour,
		},
		Scan: ScanConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "llmshield",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

// Validate checks the configuration for errors that must stop startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.TLSEnabled {
		if c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "" {
			return errors.New("TLS enabled but cert or key file not set")
		}
	}

	switch c.Storage.Type {
	case StorageTypeMemory:
	case StorageTypeJSON:
		if c.Storage.Path == "" {
			return errors.New("storage path is required for json storage")
		}
	case StorageTypeSQLite, StorageTypePostgres:
		if c.Storage.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", c.Storage.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.RateLimit.Enabled {
		if _, err := ParseTier(c.RateLimit.DefaultTier); err != nil {
			return fmt.Errorf("rate limit default tier: %w", err)
		}
		if err := c.RateLimit.Tiers.Validate(); err != nil {
			return fmt.Errorf("rate limit tiers: %w", err)
		}
		if c.RateLimit.CleanupInterval <= 0 {
			return errors.New("rate limit cleanup interval must be positive")
		}
		if c.RateLimit.IdleEviction <= 0 {
			return errors.New("rate limit idle eviction must be positive")
		}
	}

	if c.Security.BootstrapKey != "" {
		if !ValidKeyFormat(c.Security.BootstrapKey) {
			return errors.New("bootstrap key does not match the required key format")
		}
		if _, err := ParseTier(c.Security.BootstrapKeyTier); err != nil {
			return fmt.Errorf("bootstrap key tier: %w", err)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path cannot be empty")
		}
	}

	return nil
}
