package caching

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCachingService) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCachingService(client)
}

func TestRedisCachingService(t *testing.T) {
	ctx := context.Background()
	mr, svc := newTestRedis(t)

	_, err := svc.Get(ctx, "files:list")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, svc.Set(ctx, "files:list", []byte(`[{"file_name":"a"}]`), time.Minute))
	val, err := svc.Get(ctx, "files:list")
	require.NoError(t, err)
	assert.Equal(t, `[{"file_name":"a"}]`, string(val))

	mr.FastForward(2 * time.Minute)
	_, err = svc.Get(ctx, "files:list")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, svc.Set(ctx, "files:list", []byte("x"), 0))
	require.NoError(t, svc.Delete(ctx, "files:list"))
	_, err = svc.Get(ctx, "files:list")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, svc.IsReady(ctx))
}

func TestNullCachingService(t *testing.T) {
	ctx := context.Background()
	svc := NewNullCachingService()

	require.NoError(t, svc.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := svc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, svc.Delete(ctx, "k"))
	n, err := svc.Incr(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListingCache_InvalidateOrphansStaleWrite(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestRedis(t)
	c := NewListingCache(svc, "files:list", time.Minute)

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", gen)

	// a listing read the store at gen, an upload lands before it caches
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.Set(ctx, gen, []byte("[]")))

	next, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", next)
	_, err = c.Get(ctx, next)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, next, []byte(`[{"file_name":"a"}]`)))
	val, err := c.Get(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, `[{"file_name":"a"}]`, string(val))
}
