package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/audiolibrelab/cliprec/internal/config"
)

// Redis stores values as plain string keys.
type Redis struct {
	client *redis.Client
	cfg    config.RedisConfig
}

func NewRedis(cfg config.RedisConfig) *Redis {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	return NewRedisWithClient(redis.NewClient(opts), cfg)
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, cfg config.RedisConfig) *Redis {
	return &Redis{client: client, cfg: cfg}
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to store %s in redis %s: %w", key, r.cfg.Addr, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from redis %s: %w", key, r.cfg.Addr, err)
	}
	return v, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
