// Package config loads the settings of the external system communication layer
// from environment variables, optionally read from a .env file first.
//
// Environment Variables:
//
// Logging:
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - LOG_FORMAT: json or console (default: json)
//
// Storage:
//   - DATABASE_TYPE: "sqlite", "postgres" or "memory" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./extsys.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE
//
// Redis (stream transport and the redis event bus):
//   - REDIS_ADDRESS: Redis server address, empty disables Redis (default: empty)
//   - REDIS_PASSWORD, REDIS_DB (0-15), REDIS_POOL_SIZE (default: 10)
//
// Change events:
//   - EVENT_BUS: "local" or "redis" (default: local)
//   - EVENT_CHANNEL: Redis channel for change events (default: extsys:config-changes)
//
// Clients:
//   - CONFIG_ENCRYPTION_KEY: passphrase protecting stored secrets; secrets are
//     stored as given when empty
//   - INSTANCE_CACHE_TTL: idle lifetime of cached clients (default: 10m)
//   - MAX_CONCURRENT_REQUESTS: requests in flight across all clients (default: 64)
//   - RATE_LIMIT_PER_SECOND: outbound requests per second per external system,
//     0 disables throttling (default: 0)
//   - RATE_LIMIT_BURST: token bucket burst size (default: the per-second rate)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"extsys/internal/common/ratelimit"

	"github.com/joho/godotenv"
)

// Config holds every setting. Load fills it from the environment; call
// Validate before use.
type Config struct {
	LogLevel  string
	LogFormat string

	DatabaseType     string
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	EventBus     string
	EventChannel string

	EncryptionKey         string
	InstanceCacheTTL      string
	MaxConcurrentRequests string
	RateLimitPerSecond    string
	RateLimitBurst        string
}

// Load reads the configuration from environment variables, applying defaults.
func Load() *Config {
	return &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseType:     strings.ToLower(getEnv("DATABASE_TYPE", "sqlite")),
		DatabasePath:     getEnv("DATABASE_PATH", "./extsys.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "extsys"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		EventBus:     strings.ToLower(getEnv("EVENT_BUS", "local")),
		EventChannel: getEnv("EVENT_CHANNEL", "extsys:config-changes"),

		EncryptionKey:         getEnv("CONFIG_ENCRYPTION_KEY", ""),
		InstanceCacheTTL:      getEnv("INSTANCE_CACHE_TTL", "10m"),
		MaxConcurrentRequests: getEnv("MAX_CONCURRENT_REQUESTS", "64"),
		RateLimitPerSecond:    getEnv("RATE_LIMIT_PER_SECOND", "0"),
		RateLimitBurst:        getEnv("RATE_LIMIT_BURST", "0"),
	}
}

// LoadFiles reads the given .env files (".env" when none are named) into the
// environment and then calls Load. Variables already set are kept, and
// missing files are ignored.
func LoadFiles(files ...string) *Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		_ = godotenv.Load(file)
	}
	return Load()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate checks values and cross-field requirements.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console'")
	}

	switch c.DatabaseType {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
	case "postgres", "postgresql":
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
	case "memory":
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite', 'postgres' or 'memory'")
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	switch c.EventBus {
	case "local":
	case "redis":
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required when EVENT_BUS is 'redis'")
		}
		if c.EventChannel == "" {
			return fmt.Errorf("EVENT_CHANNEL is required when EVENT_BUS is 'redis'")
		}
	default:
		return fmt.Errorf("EVENT_BUS must be 'local' or 'redis'")
	}

	if ttl, err := time.ParseDuration(c.InstanceCacheTTL); err != nil || ttl <= 0 {
		return fmt.Errorf("INSTANCE_CACHE_TTL must be a positive duration (e.g., '10m')")
	}

	if n, err := strconv.Atoi(c.MaxConcurrentRequests); err != nil || n < 1 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be a positive number")
	}

	if rps, err := strconv.ParseFloat(c.RateLimitPerSecond, 64); err != nil || rps < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_SECOND must be a non-negative number")
	}
	if burst, err := strconv.Atoi(c.RateLimitBurst); err != nil || burst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be a non-negative number")
	}

	return nil
}

// UseRedis reports whether a Redis server is configured
func (c *Config) UseRedis() bool {
	return c.RedisAddress != ""
}

// StoreType returns the storage registry name of DatabaseType.
func (c *Config) StoreType() string {
	if c.DatabaseType == "postgresql" {
		return "postgres"
	}
	return c.DatabaseType
}

// The accessors below assume Validate passed.

func (c *Config) PostgresPortNumber() int {
	port, _ := strconv.Atoi(c.PostgresPort)
	return port
}

func (c *Config) RedisDBNumber() int {
	db, _ := strconv.Atoi(c.RedisDB)
	return db
}

func (c *Config) RedisPoolSizeNumber() int {
	size, _ := strconv.Atoi(c.RedisPoolSize)
	return size
}

func (c *Config) CacheTTL() time.Duration {
	ttl, _ := time.ParseDuration(c.InstanceCacheTTL)
	return ttl
}

func (c *Config) MaxConcurrent() int64 {
	n, _ := strconv.ParseInt(c.MaxConcurrentRequests, 10, 64)
	return n
}

// RateLimit returns the outbound throttle settings; disabled when the rate is 0.
func (c *Config) RateLimit() ratelimit.Config {
	rps, _ := strconv.ParseFloat(c.RateLimitPerSecond, 64)
	if rps <= 0 {
		return ratelimit.Disabled()
	}
	burst, _ := strconv.Atoi(c.RateLimitBurst)
	return ratelimit.Config{
		Enabled:           true,
		RequestsPerSecond: rps,
		BurstSize:         burst,
	}
}
