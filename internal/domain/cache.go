package domain

import (
	"context"
	"time"
)

// Cache defines the interface for snapshot caching.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require societyID for strict isolation between cooperatives.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, societyID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, societyID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, societyID string, key string) error

	// GetSnapshot retrieves a cached account snapshot.
	GetSnapshot(ctx context.Context, societyID string) (*Snapshot, error)

	// SetSnapshot caches an account snapshot between fetch and evaluation.
	SetSnapshot(ctx context.Context, societyID string, snap *Snapshot, ttl time.Duration) error

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
