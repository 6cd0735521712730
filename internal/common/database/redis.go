// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"hotspot-selection/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient holds the connection behind the feature cache.
type RedisClient struct {
	Client *redis.Client
}

func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		// The analysis pool is the only writer; a few spare connections
		// cover the readiness check.
		poolSize = 8
	}
	return &RedisClient{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     poolSize,
		MinIdleConns: 1,
	})}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// CountKeys counts keys under prefix with SCAN, stopping at limit so a large
// cache cannot stall the caller.
func (c *RedisClient) CountKeys(ctx context.Context, prefix string, limit int) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := c.Client.Scan(ctx, cursor, prefix+"*", 500).Result()
		if err != nil {
			return n, fmt.Errorf("redis scan %s*: %w", prefix, err)
		}
		n += len(keys)
		if next == 0 || (limit > 0 && n >= limit) {
			return n, nil
		}
		cursor = next
	}
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}
