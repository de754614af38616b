// Package config loads service configuration from YAML files and environment
// variables. Precedence: defaults, then file, then environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"llmshield/internal/models"
)

// Load loads configuration from file and environment variables.
func Load(configPath string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment applies LLMSHIELD_* environment overrides.
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("LLMSHIELD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LLMSHIELD_HOST"); host != "" {
		config.Server.Host = host
	}
	if timeout := os.Getenv("LLMSHIELD_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("LLMSHIELD_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}
	if timeout := os.Getenv("LLMSHIELD_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.IdleTimeout = d
		}
	}
	if tls := os.Getenv("LLMSHIELD_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}
	if certFile := os.Getenv("LLMSHIELD_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}
	if keyFile := os.Getenv("LLMSHIELD_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	// Storage configuration
	if storageType := os.Getenv("LLMSHIELD_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if storagePath := os.Getenv("LLMSHIELD_STORAGE_PATH"); storagePath != "" {
		config.Storage.Path = storagePath
	}
	if dsn := os.Getenv("LLMSHIELD_DATABASE_DSN"); dsn != "" {
		config.Storage.Database.DSN = dsn
	}
	if maxOpen := os.Getenv("LLMSHIELD_DATABASE_MAX_OPEN_CONNS"); maxOpen != "" {
		if conns, err := strconv.Atoi(maxOpen); err == nil {
			config.Storage.Database.MaxOpenConns = conns
		}
	}
	if maxIdle := os.Getenv("LLMSHIELD_DATABASE_MAX_IDLE_CONNS"); maxIdle != "" {
		if conns, err := strconv.Atoi(maxIdle); err == nil {
			config.Storage.Database.MaxIdleConns = conns
		}
	}

	// Security configuration
	if auth := os.Getenv("LLMSHIELD_ENABLE_AUTH"); auth != "" {
		config.Security.EnableAuth = strings.ToLower(auth) == "true"
	}
	if bk := os.Getenv("LLMSHIELD_BOOTSTRAP_KEY"); bk != "" {
		config.Security.BootstrapKey = bk
	}
	if tier := os.Getenv("LLMSHIELD_BOOTSTRAP_KEY_TIER"); tier != "" {
		config.Security.BootstrapKeyTier = tier
	}

	// Rate limit configuration
	if enabled := os.Getenv("LLMSHIELD_RATE_LIMIT_ENABLED"); enabled != "" {
		config.RateLimit.Enabled = strings.ToLower(enabled) == "true"
	}
	if tier := os.Getenv("LLMSHIELD_RATE_LIMIT_DEFAULT_TIER"); tier != "" {
		config.RateLimit.DefaultTier = tier
	}
	if interval := os.Getenv("LLMSHIELD_RATE_LIMIT_CLEANUP_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.RateLimit.CleanupInterval = d
		}
	}
	if eviction := os.Getenv("LLMSHIELD_RATE_LIMIT_IDLE_EVICTION"); eviction != "" {
		if d, err := time.ParseDuration(eviction); err == nil {
			config.RateLimit.IdleEviction = d
		}
	}

	// Logging configuration
	if level := os.Getenv("LLMSHIELD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LLMSHIELD_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("LLMSHIELD_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}
	if filePath := os.Getenv("LLMSHIELD_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("LLMSHIELD_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}
	if path := os.Getenv("LLMSHIELD_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}
	if port := os.Getenv("LLMSHIELD_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Observability configuration
	if name := os.Getenv("LLMSHIELD_SERVICE_NAME"); name != "" {
		config.Observability.ServiceName = name
	}
	if tracing := os.Getenv("LLMSHIELD_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}
	if exporter := os.Getenv("LLMSHIELD_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}
	if endpoint := os.Getenv("LLMSHIELD_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}

// SaveExample writes an example configuration file with auth enabled.
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()
	config.Security.EnableAuth = true
	config.Security.BootstrapKey = "llm_shield_ExampleExampleExampleExampleExample00000"
	config.Scan.BannedSubstrings = []string{"ignore previous instructions"}
	config.Scan.BannedPatterns = []string{`(?i)system prompt`}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
