package caching

import (
	"context"
	"errors"
	"time"
)

// ListingCache stores a listing under a key derived from a generation counter.
// Invalidate bumps the counter, so a listing read from the store before an
// invalidation lands under a generation no reader asks for again.
type ListingCache struct {
	svc CachingService
	key string
	ttl time.Duration
}

func NewListingCache(svc CachingService, key string, ttl time.Duration) *ListingCache {
	return &ListingCache{svc: svc, key: key, ttl: ttl}
}

func (c *ListingCache) generationKey() string {
	return c.key + ":gen"
}

// Generation returns the current generation. It must be read before the
// backing store so a concurrent invalidation is detected.
func (c *ListingCache) Generation(ctx context.Context) (string, error) {
	gen, err := c.svc.Get(ctx, c.generationKey())
	if errors.Is(err, ErrCacheMiss) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return string(gen), nil
}

func (c *ListingCache) Get(ctx context.Context, gen string) ([]byte, error) {
	return c.svc.Get(ctx, c.key+":"+gen)
}

func (c *ListingCache) Set(ctx context.Context, gen string, value []byte) error {
	return c.svc.Set(ctx, c.key+":"+gen, value, c.ttl)
}

func (c *ListingCache) Invalidate(ctx context.Context) error {
	_, err := c.svc.Incr(ctx, c.generationKey())
	return err
}
