package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, societyID string, key string) ([]byte, error) {
	if societyID == "" {
		return nil, fmt.Errorf("societyID is required")
	}

	fullKey := c.makeKey(societyID, key)
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, societyID string, key string, value []byte, ttl time.Duration) error {
	if societyID == "" {
		return fmt.Errorf("societyID is required")
	}

	fullKey := c.makeKey(societyID, key)
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, societyID string, key string) error {
	if societyID == "" {
		return fmt.Errorf("societyID is required")
	}

	fullKey := c.makeKey(societyID, key)
	return c.client.Del(ctx, fullKey).Err()
}

// GetSnapshot retrieves the cached account snapshot for a society.
func (c *RedisCache) GetSnapshot(ctx context.Context, societyID string) (*domain.Snapshot, error) {
	data, err := c.Get(ctx, societyID, snapshotKey)
	if err != nil || data == nil {
		return nil, err
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetSnapshot caches an account snapshot between fetch and evaluation.
func (c *RedisCache) SetSnapshot(ctx context.Context, societyID string, snap *domain.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.Set(ctx, societyID, snapshotKey, data, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(societyID, key string) string {
	return "kestrel:" + societyID + ":" + key
}
