// Package config provides configuration management for the publishing
// dispatcher. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Dispatcher DispatcherConfig
	Retry      RetryConfig
	Breaker    BreakerConfig
	Platforms  PlatformsConfig
	Logging    LoggingConfig
}

// ServerConfig holds status API server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// DispatcherConfig holds poller and worker pool configuration
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	CallTimeout  time.Duration
	ClaimLease   time.Duration
}

// RetryConfig holds retry policy configuration
type RetryConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
}

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// PlatformsConfig holds platform configuration
type PlatformsConfig struct {
	Enabled   []string
	Platforms map[string]PlatformConfig
}

// PlatformConfig holds configuration for a specific platform
type PlatformConfig struct {
	APIBaseURL   string
	DefaultRPS   float64
	DefaultBurst int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "publish_dispatcher"),
				User:           getEnv("POSTGRES_USER", "dispatcher"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "publish_dispatcher"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Dispatcher: DispatcherConfig{
			PollInterval: getEnvAsDuration("DISPATCHER_POLL_INTERVAL", 30*time.Second),
			BatchSize:    getEnvAsInt("DISPATCHER_BATCH_SIZE", 50),
			Concurrency:  getEnvAsInt("DISPATCHER_CONCURRENCY", 5),
			CallTimeout:  getEnvAsDuration("DISPATCHER_CALL_TIMEOUT", 30*time.Second),
			ClaimLease:   getEnvAsDuration("DISPATCHER_CLAIM_LEASE", 5*time.Minute),
		},
		Retry: RetryConfig{
			BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 60*time.Second),
			MaxDelay:    getEnvAsDuration("RETRY_MAX_DELAY", 30*time.Minute),
			Multiplier:  getEnvAsFloat("RETRY_MULTIPLIER", 2.0),
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			RecoveryTimeout:  getEnvAsDuration("BREAKER_RECOVERY_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	config.Platforms = loadPlatformConfigs()

	return config, nil
}

// loadPlatformConfigs loads platform-specific configurations
func loadPlatformConfigs() PlatformsConfig {
	var enabled []string
	for _, platform := range strings.Split(getEnv("ENABLED_PLATFORMS", "twitter,linkedin,facebook"), ",") {
		if platform = strings.TrimSpace(platform); platform != "" {
			enabled = append(enabled, platform)
		}
	}

	platforms := make(map[string]PlatformConfig)
	for _, platform := range enabled {
		prefix := strings.ToUpper(platform)
		platforms[platform] = PlatformConfig{
			APIBaseURL:   getEnv(prefix+"_API_BASE_URL", ""),
			DefaultRPS:   getEnvAsFloat(prefix+"_DEFAULT_RPS", 1.0),
			DefaultBurst: getEnvAsInt(prefix+"_DEFAULT_BURST", 5),
		}
	}

	return PlatformsConfig{
		Enabled:   enabled,
		Platforms: platforms,
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
