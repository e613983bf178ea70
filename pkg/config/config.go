package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atriumhq/atrium/pkg/observability"
	"github.com/atriumhq/atrium/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database storage.Config

	// Cache configuration
	Cache CacheConfig

	// Module registry file
	RegistryPath string

	// Observability configuration
	Observability ObservabilityConfig
}

// CacheConfig holds permission cache settings. Backend "none" disables
// caching entirely; "memory" and "redis" select the matching decorator.
type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	MemorySize    int
	RedisAddr     string
	RedisPassword string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		RegistryPath:  getEnv("ATRIUM_REGISTRY_PATH", ""),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.URL = getEnv("ATRIUM_POSTGRES_URL", "")
	if maxConns := getEnvInt("ATRIUM_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("ATRIUM_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("ATRIUM_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	return cfg
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:       strings.ToLower(getEnv("ATRIUM_CACHE_BACKEND", "none")),
		TTL:           getEnvDuration("ATRIUM_CACHE_TTL", 5*time.Minute),
		MemorySize:    getEnvInt("ATRIUM_CACHE_MEMORY_SIZE", 10000),
		RedisAddr:     getEnv("ATRIUM_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("ATRIUM_REDIS_PASSWORD", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("ATRIUM_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("ATRIUM_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("ATRIUM_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ATRIUM_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ATRIUM_OTEL_SERVICE_NAME", "atrium-authz"),
		OTelServiceVersion: getEnv("ATRIUM_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("ATRIUM_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be none, memory, or redis)", c.Cache.Backend)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
