// Package redis implements the cache tier in front of the mapping store.
//
// URLCache holds short code to original URL entries with a TTL capped at the record's
// remaining lifetime. ReadThroughRepository decorates the mapping store so that a store
// read by short code refreshes the cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/vadimbarashkov/shortlink/internal/entity"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "url:"

const defaultTTL = 10 * time.Minute

func key(shortCode string) string {
	return keyPrefix + shortCode
}

// cachedURL is the value stored under a short code. The access counter is not cached,
// the mapping store is its only authority. OriginalURL is kept as bytes (base64 in JSON)
// so invalid UTF-8 survives the round trip.
type cachedURL struct {
	OriginalURL []byte `json:"original_url"`
	ExpiresAt   int64  `json:"expires_at"`
	CreatedAt   int64  `json:"created_at"`
}

// Option configures a URLCache.
type Option func(*URLCache)

// WithTTL sets the upper bound for entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(c *URLCache) {
		c.ttl = d
	}
}

// WithClock replaces the clock used to cap entry lifetime and to drop expired entries.
func WithClock(now func() time.Time) Option {
	return func(c *URLCache) {
		c.now = now
	}
}

type URLCache struct {
	rdb goredis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewURLCache(rdb goredis.Cmdable, opts ...Option) *URLCache {
	c := &URLCache{
		rdb: rdb,
		ttl: defaultTTL,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the cached record for shortCode or entity.ErrCacheMiss.
// Entries whose record has expired are reported as misses.
func (c *URLCache) Get(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.cache.redis.URLCache.Get"

	data, err := c.rdb.Get(ctx, key(shortCode)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrCacheMiss)
		}

		return nil, fmt.Errorf("%s: failed to get cache entry: %w", op, err)
	}

	var v cachedURL
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%s: failed to decode cache entry: %w", op, err)
	}

	url := &entity.URL{
		ShortCode:   shortCode,
		OriginalURL: string(v.OriginalURL),
		ExpiresAt:   time.Unix(v.ExpiresAt, 0),
		CreatedAt:   time.Unix(v.CreatedAt, 0),
	}

	if url.Expired(c.now()) {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrCacheMiss)
	}

	return url, nil
}

// Set stores url until the earlier of the cache TTL and the record's expiration.
// Already expired records are not stored.
func (c *URLCache) Set(ctx context.Context, url *entity.URL) error {
	const op = "adapter.cache.redis.URLCache.Set"

	ttl := min(c.ttl, url.ExpiresAt.Sub(c.now()))
	if ttl < time.Second {
		return nil
	}

	data, err := json.Marshal(cachedURL{
		OriginalURL: []byte(url.OriginalURL),
		ExpiresAt:   url.ExpiresAt.Unix(),
		CreatedAt:   url.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("%s: failed to encode cache entry: %w", op, err)
	}

	if err := c.rdb.Set(ctx, key(url.ShortCode), data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set cache entry: %w", op, err)
	}

	return nil
}
