package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gradebench/gradebench/internal/domain/model"
)

// BatchSummaryCacheConfig holds configuration for the batch summary cache.
type BatchSummaryCacheConfig struct {
	// TTL bounds staleness if an invalidation is ever lost.
	TTL time.Duration
}

// RedisBatchCache caches batch rollups in Redis. The rollup is eventually
// consistent anyway, so the cache only has to stay close, not exact; every
// recompute invalidates the entry.
type RedisBatchCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisBatchCache creates a RedisBatchCache with the given client.
func NewRedisBatchCache(client redis.UniversalClient, cfg BatchSummaryCacheConfig) *RedisBatchCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisBatchCache{client: client, ttl: ttl}
}

func batchCacheKey(batchID string) string {
	return "batch:summary:" + batchID
}

// Get returns the cached batch, or nil on a miss.
func (c *RedisBatchCache) Get(ctx context.Context, batchID string) (*model.Batch, error) {
	if batchID == "" {
		return nil, errors.New("batch id cannot be empty")
	}

	raw, err := c.client.Get(ctx, batchCacheKey(batchID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var batch model.Batch
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		// A corrupt entry is treated as a miss; the caller refills it.
		return nil, nil
	}
	return &batch, nil
}

// Set stores the batch rollup under its TTL.
func (c *RedisBatchCache) Set(ctx context.Context, batch *model.Batch) error {
	if batch == nil || batch.ID == "" {
		return errors.New("batch with id is required")
	}

	raw, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	return c.client.Set(ctx, batchCacheKey(batch.ID), raw, c.ttl).Err()
}

// Invalidate drops the cached entry for a batch.
func (c *RedisBatchCache) Invalidate(ctx context.Context, batchID string) error {
	if batchID == "" {
		return errors.New("batch id cannot be empty")
	}
	return c.client.Del(ctx, batchCacheKey(batchID)).Err()
}

// Health checks the Redis connection.
func (c *RedisBatchCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// RedisConfig holds connection settings for Redis.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NewRedisClient creates a Redis client from the given configuration.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
