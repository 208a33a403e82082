package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kikokikok/fps-genie/internal/config"
	"github.com/kikokikok/fps-genie/internal/models"
)

const (
	hashKeyPrefix = "demo:hash:"
	statsCacheKey = "ingest:stats"
	statsCacheTTL = 30 * time.Second
)

// RedisCache wraps the Redis client used for dedup fast paths and
// short-lived stats caching. All methods degrade gracefully: callers
// treat cache misses and cache errors the same way.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client, used by tests
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SeenHash reports whether a content hash was registered before.
// The relational unique constraint remains the source of truth; this
// is only a fast path that lets discovery skip known files.
func (r *RedisCache) SeenHash(ctx context.Context, contentHash string) (bool, error) {
	count, err := r.client.Exists(ctx, hashKeyPrefix+contentHash).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RegisterHash records a content hash after the relational insert
// succeeded. Entries expire so a wiped database does not leave the
// cache permanently poisoned.
func (r *RedisCache) RegisterHash(ctx context.Context, contentHash string) error {
	return r.client.Set(ctx, hashKeyPrefix+contentHash, "1", 7*24*time.Hour).Err()
}

// GetCachedStats returns cached ingest stats, or (nil, nil) on a miss
func (r *RedisCache) GetCachedStats(ctx context.Context) (*models.IngestStats, error) {
	raw, err := r.client.Get(ctx, statsCacheKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats models.IngestStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetCachedStats stores ingest stats with a short TTL
func (r *RedisCache) SetCachedStats(ctx context.Context, stats *models.IngestStats) error {
	encoded, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, statsCacheKey, encoded, statsCacheTTL).Err()
}

// InvalidateStats drops the cached stats entry
func (r *RedisCache) InvalidateStats(ctx context.Context) error {
	return r.client.Del(ctx, statsCacheKey).Err()
}
