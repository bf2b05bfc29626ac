package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const bestMarketKey = "driftbuy:best_market"

// RedisCache stores the best-market pointer in Redis so multiple instances
// share one selection. The key TTL matches the freshness boundary; entries
// additionally carry FetchedAt so consumers can see data age.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions parameterise the Redis cache backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Get returns the cached entry, if present.
func (c *RedisCache) Get(ctx context.Context) (CachedMarket, bool, error) {
	raw, err := c.client.Get(ctx, bestMarketKey).Result()
	if errors.Is(err, redis.Nil) {
		return CachedMarket{}, false, nil
	}
	if err != nil {
		return CachedMarket{}, false, fmt.Errorf("get best market: %w", err)
	}

	var entry CachedMarket
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return CachedMarket{}, false, fmt.Errorf("decode best market: %w", err)
	}
	return entry, true, nil
}

// Put stores the entry under the freshness TTL.
func (c *RedisCache) Put(ctx context.Context, entry CachedMarket) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode best market: %w", err)
	}
	if err := c.client.Set(ctx, bestMarketKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set best market: %w", err)
	}
	return nil
}

// Close releases the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
