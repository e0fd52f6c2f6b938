package imagecache

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	// DefaultMaxSize is the default cache size budget (500 MiB).
	DefaultMaxSize int64 = 500 * 1024 * 1024

	// DefaultMaxAge is the default freshness window for cached entries.
	DefaultMaxAge = 7 * 24 * time.Hour

	// DefaultStaleWhileRevalidate is the default grace period during
	// which a stale entry may still be served.
	DefaultStaleWhileRevalidate = 24 * time.Hour
)

// Config holds configuration for cache behavior.
type Config struct {
	// MaxSize is the maximum total payload size in bytes. The cache
	// enforces it by evicting least-recently-used entries before a
	// write, never by rejecting the write.
	MaxSize int64

	// MaxAge is how long an entry is considered fresh after it was
	// cached.
	MaxAge time.Duration

	// StaleWhileRevalidate is the grace period past MaxAge during which
	// a stale entry may still be served while a refresh is pending.
	StaleWhileRevalidate time.Duration

	// VerifyOnRead recomputes the content hash on every Get and
	// downgrades the verification status to failed on mismatch. The
	// entry is not removed.
	VerifyOnRead bool

	// PurgeFailed deletes entries whose write-time verification failed
	// instead of retaining them flagged. The default (false) keeps the
	// trust-but-flag behavior so callers can inspect or retry.
	PurgeFailed bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		MaxSize:              DefaultMaxSize,
		MaxAge:               DefaultMaxAge,
		StaleWhileRevalidate: DefaultStaleWhileRevalidate,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("max size must be greater than 0, got %d", c.MaxSize)
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("max age must be greater than 0, got %s", c.MaxAge)
	}
	if c.StaleWhileRevalidate < 0 {
		return fmt.Errorf("stale-while-revalidate cannot be negative, got %s", c.StaleWhileRevalidate)
	}
	return nil
}

// SetDefaults fills unset fields with the default values.
func (c *Config) SetDefaults() {
	if c.MaxSize == 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.MaxAge == 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.StaleWhileRevalidate == 0 {
		c.StaleWhileRevalidate = DefaultStaleWhileRevalidate
	}
}
