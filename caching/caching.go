package caching

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

type CachingService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
}

type NullCachingService struct{}

func NewNullCachingService() *NullCachingService {
	return &NullCachingService{}
}

func (NullCachingService) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (NullCachingService) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (NullCachingService) Delete(context.Context, string) error {
	return nil
}

func (NullCachingService) Incr(context.Context, string) (int64, error) {
	return 0, nil
}
