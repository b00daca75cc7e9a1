package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/crewware/teamcore/pkg/observability"
	"github.com/crewware/teamcore/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Redis configuration
	Redis RedisConfig

	// Departure sweeper configuration
	Sweeper SweeperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RedisConfig holds the cache and rate limit backend settings. Redis
// is optional; with no address the service runs on local caches only.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis backend is configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// SweeperConfig controls departure retry sweeps
type SweeperConfig struct {
	Enabled  bool
	Schedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		Sweeper:       loadSweeperConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TEAMCORE_HOST", "0.0.0.0"),
		Port:            getEnv("TEAMCORE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TEAMCORE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TEAMCORE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TEAMCORE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TEAMCORE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TEAMCORE_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("TEAMCORE_POSTGRES_URL", ""); pgURL != "" {
		cfg.URL = pgURL
	}
	if maxConns := getEnvInt("TEAMCORE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("TEAMCORE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("TEAMCORE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	return cfg
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("TEAMCORE_REDIS_ADDR", ""),
		Password: getEnv("TEAMCORE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("TEAMCORE_REDIS_DB", 0),
	}
}

// loadSweeperConfig loads sweeper configuration from environment
func loadSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Enabled:  getEnvBool("TEAMCORE_SWEEPER_ENABLED", true),
		Schedule: getEnv("TEAMCORE_SWEEPER_SCHEDULE", "@every 1m"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("TEAMCORE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("TEAMCORE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Storage.URL == "" {
		return fmt.Errorf("postgres URL is required")
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
