package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/shortlink/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisDB struct {
	Client *redis.Client
}

// NewRedisClient возвращает клиент даже если Redis недоступен при старте:
// кэш необязателен, go-redis переподключается сам. Ошибкой считается только
// некорректный URL.
func NewRedisClient(cfg config.RedisConfig, logger *zap.Logger) (*RedisDB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis is unreachable, serving from the record store only",
			zap.String("addr", opts.Addr),
			zap.Error(err),
		)
	} else {
		logger.Info("Connected to Redis")
	}

	return &RedisDB{Client: client}, nil
}

func (db *RedisDB) Close() error {
	return db.Client.Close()
}

func (db *RedisDB) Shutdown() error {
	return db.Close()
}

func (db *RedisDB) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return db.Client.Ping(ctx).Err()
}
