// Package database holds the optional Redis connection that worker processes
// share for channel-creation leases.
package database

import (
	"context"
	"fmt"
	"time"

	"guild-intake/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// Redis is the lease store connection. Lease traffic is a handful of small
// commands per submission, so the pool stays small.
type Redis struct {
	client *redis.Client
	addr   string
}

// NewRedis builds the client without dialing; call Ping before use.
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("redis address is not configured")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		MinIdleConns: 1,
	})

	return &Redis{client: rdb, addr: cfg.Address}, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s unreachable: %w", r.addr, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Address() string {
	return r.addr
}

// Cmdable exposes only the command surface the lease implementation needs.
func (r *Redis) Cmdable() redis.Cmdable {
	return r.client
}
