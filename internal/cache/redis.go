package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bilgisen/feedcore/internal/config"
	"github.com/redis/go-redis/v9"
)

// Store keeps small values that must survive between update cycles: feed
// ETags and the raw publisher directory body.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ETagKey is the key under which the remote feed ETag for locale is kept
func ETagKey(locale string) string {
	return "etag:" + locale
}

// DirectoryKey is the key under which the raw publisher directory for locale is kept
func DirectoryKey(locale string) string {
	return "sources:" + locale
}

type RedisClient struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		prefix: cfg.RedisPrefix,
	}, nil
}

// NewStore returns a redis-backed store when a URL is configured and an
// in-process one otherwise
func NewStore(cfg *config.Config) (Store, error) {
	if cfg.RedisURL == "" {
		return NewMockRedisClient(cfg.RedisPrefix), nil
	}
	return NewRedisClient(cfg)
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Get returns "" without error when the key does not exist
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get error: %w", err)
	}
	return value, nil
}

func (r *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *RedisClient) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}
	return nil
}
