// Package cache keeps confirmed token subjects and rate-limit buckets in Redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection. Zero values fall back to the
// defaults below.
type Options struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	// PingTimeout bounds the connectivity check made by New.
	PingTimeout time.Duration
}

const (
	defaultPoolSize     = 10
	defaultMinIdleConns = 2
	defaultPingTimeout  = 5 * time.Second
)

// Cache wraps the Redis client shared by the subject cache and the limiter.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and fails if the server does not answer a ping.
func New(ctx context.Context, opts Options) (*Cache, error) {
	ropt, err := clientOptions(opts)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(ropt)

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

func clientOptions(opts Options) (*redis.Options, error) {
	ropt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	ropt.PoolSize = opts.PoolSize
	if ropt.PoolSize <= 0 {
		ropt.PoolSize = defaultPoolSize
	}
	ropt.MinIdleConns = opts.MinIdleConns
	if ropt.MinIdleConns < 0 || ropt.MinIdleConns > ropt.PoolSize {
		return nil, fmt.Errorf("redis min idle conns %d out of range [0, %d]", ropt.MinIdleConns, ropt.PoolSize)
	}
	if opts.MinIdleConns == 0 {
		ropt.MinIdleConns = min(defaultMinIdleConns, ropt.PoolSize)
	}
	ropt.PoolTimeout = 4 * time.Second
	ropt.ConnMaxIdleTime = 5 * time.Minute

	return ropt, nil
}

// Ping backs the readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the underlying client to test helpers.
func (c *Cache) Client() *redis.Client {
	return c.client
}
