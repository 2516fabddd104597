package redis

import (
	"context"
	"fmt"

	"chatterbox/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects the client shared by the event stream, the
// last-seen index and the profile cache.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout, opts.ReadTimeout, opts.WriteTimeout = cfg.DialTimeout, cfg.ReadTimeout, cfg.WriteTimeout
	opts.PoolSize, opts.MinIdleConns = cfg.PoolSize, cfg.MinIdleConns

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
