package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require shopID for strict shop isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, shopID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, shopID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, shopID string, key string) error

	// GetDashboard retrieves a cached dashboard result.
	GetDashboard(ctx context.Context, shopID string, key string) (*Dashboard, error)

	// SetDashboard caches a dashboard result for repeated queries.
	SetDashboard(ctx context.Context, shopID string, key string, d *Dashboard, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for ingestion rate accounting.
	IncrementCounter(ctx context.Context, shopID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
