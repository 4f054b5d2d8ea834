package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned for cache misses
var ErrNotFound = errors.New("key not found in cache")

const (
	connectTimeout = 5 * time.Second
	scanBatch      = 100
)

// RedisCache holds the catalog cache, login lockout counters and the pool
// backing callback locks.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redisURL and fails unless the server answers a ping
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// GetJSON decodes the value at key into dest
func (r *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// SetJSON stores value JSON-encoded under key for ttl
func (r *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}

// Set stores a plain value under key for ttl
func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes keys
func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// DeletePattern removes every key matching pattern, scanning in batches
func (r *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// CountInWindow increments the counter at key and returns the new count.
// The window starts with the first increment; later ones do not extend it.
func (r *RedisCache) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Remaining returns how long key has left to live. ok is false when the key
// is absent; a key without expiry reports zero.
func (r *RedisCache) Remaining(ctx context.Context, key string) (ttl time.Duration, ok bool, err error) {
	ttl, err = r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	switch {
	case ttl == -2:
		return 0, false, nil
	case ttl < 0:
		return 0, true, nil
	}
	return ttl, true, nil
}

// Client exposes the underlying client for redsync pools
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
