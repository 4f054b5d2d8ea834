package cache

import (
	"context"
	"errors"
	"time"
)

// Key prefixes shared by writers and invalidators
const (
	KeyCourseList   = "courses:list:"
	KeyCourse       = "courses:item:"
	KeyUserCourses  = "users:courses:"
	KeyUniversities = "universities:list:"

	DefaultTTL = 10 * time.Minute
)

// GetOrSet returns the cached value for key, or calls fn and caches its result.
// A nil cache or a cache failure falls through to fn.
func GetOrSet[T any](ctx context.Context, c *RedisCache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	if c == nil {
		return fn()
	}

	var cached T
	err := c.GetJSON(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}

	val, err := fn()
	if err != nil {
		return val, err
	}

	_ = c.SetJSON(ctx, key, val, ttl)
	return val, nil
}

// Invalidate deletes keys and patterns (entries ending in "*"); a nil cache is a no-op
func Invalidate(ctx context.Context, c *RedisCache, keys ...string) error {
	if c == nil {
		return nil
	}

	var errs []error
	var plain []string
	for _, k := range keys {
		if len(k) > 0 && k[len(k)-1] == '*' {
			errs = append(errs, c.DeletePattern(ctx, k))
			continue
		}
		plain = append(plain, k)
	}
	if len(plain) > 0 {
		errs = append(errs, c.Delete(ctx, plain...))
	}
	return errors.Join(errs...)
}
