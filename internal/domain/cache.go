package domain

import (
	"context"
	"time"
)

// Cache defines the interface for the read-path cache.
// Supports two-phase caching: local LRU plus Redis for shared deployments.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetProfile retrieves a cached profile snapshot.
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)

	// SetProfile caches a profile snapshot for display reads.
	SetProfile(ctx context.Context, profile *UserProfile, ttl time.Duration) error

	// InvalidateProfile drops a cached snapshot after a confirmation.
	InvalidateProfile(ctx context.Context, userID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
