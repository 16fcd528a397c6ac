package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// CacheRepository кэш shortId -> originalUrl с TTL. Промах не означает отсутствие записи.
type CacheRepository interface {
	Get(ctx context.Context, shortID string) (string, error)
	Set(ctx context.Context, shortID, originalURL string, ttl time.Duration) error
}

type cacheRepository struct {
	redis  *RedisDB
	prefix string
}

func NewCacheRepository(redis *RedisDB, prefix string) CacheRepository {
	return &cacheRepository{redis: redis, prefix: prefix}
}

func (r *cacheRepository) Get(ctx context.Context, shortID string) (string, error) {
	url, err := r.redis.Client.Get(ctx, r.key(shortID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}

	return url, nil
}

// Set перезаписывает значение; ttl <= 0 ничего не делает
func (r *cacheRepository) Set(ctx context.Context, shortID, originalURL string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	return r.redis.Client.Set(ctx, r.key(shortID), originalURL, ttl).Err()
}

func (r *cacheRepository) key(shortID string) string {
	return r.prefix + shortID
}
