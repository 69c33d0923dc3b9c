package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cache:"

// RedisClient is the subset of redis.UniversalClient the Redis backend uses,
// narrowed so tests can substitute a fake.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	DecrBy(ctx context.Context, key string, decrement int64) *redis.IntCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// Redis is a cache backed by a Redis keyspace. Expiry is delegated to the
// store's native TTL. All keys live under a configurable prefix so that
// Clear only touches this cache's namespace.
type Redis struct {
	client RedisClient
	prefix string
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithRedisPrefix overrides the key prefix namespace.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis creates a Redis-backed cache on top of client.
// It panics if client is nil.
func NewRedis(client RedisClient, opts ...RedisOption) *Redis {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	r := &Redis{
		client: client,
		prefix: defaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}

func (r *Redis) Get(ctx context.Context, key string) (json.RawMessage, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := encode(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), b, normalizeTTL(ttl)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// Clear removes every key under this cache's prefix, scanning in batches.
// Keys outside the prefix are never touched.
func (r *Redis) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return unavailable(err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return unavailable(err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// TTL reports the remaining time to live for key. It returns ErrNotFound when
// the key does not exist and a zero duration when the key has no expiry.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	switch ttl {
	case -2: // key does not exist
		return 0, ErrNotFound
	case -1: // key exists without expiry
		return 0, nil
	}
	return ttl, nil
}

// SetNX stores value under key only if the key is not already present,
// using the store-level atomic primitive. It reports whether the key was set.
// This is the building block for cross-process mutual exclusion.
func (r *Redis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	b, err := encode(value)
	if err != nil {
		return false, err
	}
	ok, err := r.client.SetNX(ctx, r.key(key), b, normalizeTTL(ttl)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

// Increment atomically adds delta to the counter stored at key, creating it
// at zero first if missing, and returns the new value.
func (r *Redis) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := r.client.IncrBy(ctx, r.key(key), delta).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Decrement atomically subtracts delta from the counter stored at key,
// creating it at zero first if missing, and returns the new value.
func (r *Redis) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := r.client.DecrBy(ctx, r.key(key), delta).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}
