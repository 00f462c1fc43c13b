package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrz1836/paycart/internal/backend"
)

const maxTTLJitter = time.Minute

// RedisCartCache is a CartCache shared across processes through Redis.
// Entries live under "cart:<userID>" with the base TTL plus up to a minute
// of jitter so carts fetched together do not expire together.
type RedisCartCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

// NewRedisCartCache wraps client.
func NewRedisCartCache(client redis.UniversalClient, ttl time.Duration) *RedisCartCache {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &RedisCartCache{client: client, baseTTL: ttl}
}

// DialRedis parses a redis:// URL and returns a client after a PING.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Get returns the cached cart or ErrCacheMiss.
func (r *RedisCartCache) Get(ctx context.Context, userID string) (*backend.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var cart backend.Cart
	if err = json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("decoding cached cart: %w", err)
	}
	return &cart, nil
}

// Set stores cart with the jittered TTL.
func (r *RedisCartCache) Set(ctx context.Context, userID string, cart *backend.Cart) error {
	if cart == nil {
		return nil
	}
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}

	ttl := r.baseTTL + rand.N(maxTTLJitter) //nolint:gosec // jitter only
	if err = r.client.Set(ctx, cartKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete drops the user's entry.
func (r *RedisCartCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func cartKey(userID string) string {
	return "cart:" + userID
}
