package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikokikok/fps-genie/internal/models"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestRedisCache_HashDedup(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	const hash = "a3f2c9d1e8b74455a3f2c9d1e8b74455a3f2c9d1e8b74455a3f2c9d1e8b74455"

	seen, err := cache.SeenHash(ctx, hash)
	require.NoError(t, err)
	assert.False(t, seen, "unregistered hash should not be seen")

	require.NoError(t, cache.RegisterHash(ctx, hash))

	seen, err = cache.SeenHash(ctx, hash)
	require.NoError(t, err)
	assert.True(t, seen, "registered hash should be seen")

	// A different hash remains unseen
	seen, err = cache.SeenHash(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisCache_HashExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	const hash = "deadbeef"
	require.NoError(t, cache.RegisterHash(ctx, hash))

	mr.FastForward(8 * 24 * time.Hour)

	seen, err := cache.SeenHash(ctx, hash)
	require.NoError(t, err)
	assert.False(t, seen, "hash entry should expire")
}

func TestRedisCache_StatsCaching(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	// Miss before anything is cached
	stats, err := cache.GetCachedStats(ctx)
	require.NoError(t, err)
	assert.Nil(t, stats)

	want := &models.IngestStats{
		Pending:        3,
		Processing:     1,
		Completed:      10,
		Failed:         2,
		ProcessedBytes: 1 << 20,
		SnapshotRows:   123456,
	}
	require.NoError(t, cache.SetCachedStats(ctx, want))

	got, err := cache.GetCachedStats(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, got)

	// Expires after the TTL
	mr.FastForward(statsCacheTTL + 1)
	got, err = cache.GetCachedStats(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_InvalidateStats(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetCachedStats(ctx, &models.IngestStats{Completed: 1}))
	require.NoError(t, cache.InvalidateStats(ctx))

	got, err := cache.GetCachedStats(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
