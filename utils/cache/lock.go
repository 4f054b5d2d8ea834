package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
)

const (
	KeyPaymentLock = "lock:payment:"

	DefaultLockExpiry = 30 * time.Second
	DefaultLockTries  = 20
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker serialises work on a key across API instances
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RedisLocker is a Locker backed by redsync
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
}

// NewLocker returns a redsync locker, or a no-op locker when c is nil
func NewLocker(c *RedisCache) Locker {
	if c == nil {
		return NoopLocker{}
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(c.Client())),
		expiry: DefaultLockExpiry,
		tries:  DefaultLockTries,
	}
}

// Lock blocks until key is held or the tries run out
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, errors.Join(ErrLockNotAcquired, err)
	}

	return func() {
		// A detached context so the unlock still runs after the request is cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = mutex.UnlockContext(ctx)
	}, nil
}

// NoopLocker is used when Redis is not configured
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}
