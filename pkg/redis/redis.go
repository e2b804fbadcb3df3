// Package redis opens go-redis clients.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 5 * time.Second

// New creates a client for opts and pings it before returning.
func New(ctx context.Context, opts *goredis.Options) (*goredis.Client, error) {
	const op = "redis.New"

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%s: failed to connect to redis at %s: %w", op, opts.Addr, err)
	}

	return rdb, nil
}
