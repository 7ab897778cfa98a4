// Package config provides configuration management for the event router service.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration to ensure the service starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Database Configuration:
//   - DATABASE_TYPE: Database type - "sqlite" or "postgres" (alias
//     "postgresql" accepted) (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./event_router.db)
//   - POSTGRES_HOST: PostgreSQL host (required if using PostgreSQL)
//   - POSTGRES_PORT: PostgreSQL port (default: 5432)
//   - POSTGRES_DB: PostgreSQL database name (required if using PostgreSQL)
//   - POSTGRES_USER: PostgreSQL username (required if using PostgreSQL)
//   - POSTGRES_PASSWORD: PostgreSQL password
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//
// Redis Configuration (routing rule cache):
//   - REDIS_ADDRESS: Redis server address (empty disables the rule cache)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - RULE_CACHE_TTL: Bounded staleness window for cached rules (default: 30s)
//
// Dispatch:
//   - DISPATCH_TIMEOUT: Per-destination timeout (default: 10s)
//   - RABBITMQ_URL: AMQP connection URL for queue destinations (empty disables them)
//
// Statistics:
//   - STATS_REFRESH_CRON: Cron spec for the background statistics refresh
//     (default: "@hourly", empty disables the job)
package config

import (
	"fmt"
	"strconv"
	"time"

	"os"
)

// Config holds all configuration values for the event router service.
// All fields correspond to environment variables that can be set to override
// the default values. Load() does not validate; call Validate() before use.
type Config struct {
	// Application settings
	Port     string // Server port number
	LogLevel string // Logging level (debug, info, warn, error)

	// Database configuration
	DatabaseType     string // Database type: "sqlite" or "postgres"
	DatabasePath     string // Path to SQLite database file
	PostgresHost     string // PostgreSQL host address
	PostgresPort     string // PostgreSQL port number
	PostgresDB       string // PostgreSQL database name
	PostgresUser     string // PostgreSQL username
	PostgresPassword string // PostgreSQL password
	PostgresSSLMode  string // PostgreSQL SSL mode (disable, require, etc.)

	// Redis configuration for the routing rule cache
	RedisAddress  string // Redis server address (host:port); empty disables the cache
	RedisPassword string // Redis authentication password
	RedisDB       string // Redis database number (0-15)
	RuleCacheTTL  string // TTL for cached rules, e.g. "30s"

	// Dispatch configuration
	DispatchTimeout string // Per-destination timeout, e.g. "10s"
	RabbitMQURL     string // AMQP connection URL for queue destinations

	// Statistics configuration
	StatsRefreshCron string // Cron spec for the background statistics refresh
}

// Load creates a new Config instance with values loaded from environment
// variables, falling back to defaults for anything unset.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./event_router.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "event_router"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RuleCacheTTL:  getEnv("RULE_CACHE_TTL", "30s"),

		DispatchTimeout: getEnv("DISPATCH_TIMEOUT", "10s"),
		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),

		StatsRefreshCron: getEnv("STATS_REFRESH_CRON", "@hourly"),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate performs validation on the configuration to ensure all required
// fields are present and all values are valid. The application should call
// this after Load() and before starting.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
		// Valid database types
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres' (alias 'postgresql')")
	}

	if c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if ttl, err := time.ParseDuration(c.RuleCacheTTL); err != nil || ttl <= 0 {
			return fmt.Errorf("RULE_CACHE_TTL must be a positive duration (e.g., '30s')")
		}
	}

	if timeout, err := time.ParseDuration(c.DispatchTimeout); err != nil || timeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be a positive duration (e.g., '10s')")
	}

	return nil
}

// GetDispatchTimeout returns the parsed per-destination dispatch timeout
func (c *Config) GetDispatchTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.DispatchTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return timeout
}

// GetRuleCacheTTL returns the parsed bounded staleness window for cached rules
func (c *Config) GetRuleCacheTTL() time.Duration {
	ttl, err := time.ParseDuration(c.RuleCacheTTL)
	if err != nil {
		return 30 * time.Second
	}
	return ttl
}
