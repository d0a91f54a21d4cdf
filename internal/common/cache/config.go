package cache

import (
	"time"
)

const (
	// DefaultTTL is how long an instance is kept after it was created
	DefaultTTL = 10 * time.Minute

	DefaultCleanupInterval = time.Minute
)

// Config holds cache configuration
type Config struct {
	TTL             time.Duration `json:"ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval,omitempty"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		TTL:             DefaultTTL,
		CleanupInterval: DefaultCleanupInterval,
	}
}
