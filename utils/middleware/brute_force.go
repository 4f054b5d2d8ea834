package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/utils/cache"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"go.uber.org/zap"
)

const (
	keyBruteForceAttempts = "brute_force:attempts:"
	keyBruteForceLock     = "brute_force:lock:"

	attemptWindow = 15 * time.Minute
)

// BruteForceProtection locks out IPs with repeated failed logins. A nil cache disables it.
type BruteForceProtection struct {
	redisCache *cache.RedisCache
	log        *zap.Logger
}

// NewBruteForceProtection creates a new brute force protection instance
func NewBruteForceProtection(redisCache *cache.RedisCache, log *zap.Logger) *BruteForceProtection {
	return &BruteForceProtection{
		redisCache: redisCache,
		log:        log,
	}
}

// lockoutFor maps the number of failures in the window to a lockout
func lockoutFor(attempts int64) time.Duration {
	switch {
	case attempts >= 25:
		return 24 * time.Hour
	case attempts >= 10:
		return time.Hour
	case attempts >= 5:
		return 2 * time.Minute
	default:
		return 0
	}
}

// CheckAndRecordAttempt middleware rejects locked out IPs
func (b *BruteForceProtection) CheckAndRecordAttempt() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if b == nil || b.redisCache == nil {
			return c.Next()
		}

		ttl, locked, err := b.redisCache.Remaining(c.UserContext(), keyBruteForceLock+c.IP())
		if err != nil {
			// Redis trouble must not block legitimate users
			b.log.Warn("Brute force check failed", zap.Error(err))
			return c.Next()
		}

		if locked {
			retryAfter := int(ttl.Seconds())
			if retryAfter <= 0 {
				retryAfter = 60
			}

			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", retryAfter))
			return response.TooManyRequests(c, fmt.Sprintf("Too many failed attempts. Try again in %d seconds", retryAfter))
		}

		return c.Next()
	}
}

// RecordFailedAttempt counts a failed login and applies progressive lockouts
func (b *BruteForceProtection) RecordFailedAttempt(ctx context.Context, ip, email string) {
	if b == nil || b.redisCache == nil {
		return
	}

	attempts, err := b.redisCache.CountInWindow(ctx, keyBruteForceAttempts+ip, attemptWindow)
	if err != nil {
		b.log.Warn("Failed to record login attempt", zap.Error(err))
		return
	}

	lock := lockoutFor(attempts)
	if lock == 0 {
		return
	}

	b.log.Warn("Locking out IP after failed logins",
		zap.String("ip", ip),
		zap.String("email", email),
		zap.Int64("attempts", attempts),
		zap.Duration("lockout", lock),
	)
	_ = b.redisCache.Set(ctx, keyBruteForceLock+ip, "locked", lock)
}

// RecordSuccessfulAttempt clears failed attempts on successful login
func (b *BruteForceProtection) RecordSuccessfulAttempt(ctx context.Context, ip string) {
	if b == nil || b.redisCache == nil {
		return
	}
	_ = b.redisCache.Delete(ctx, keyBruteForceAttempts+ip, keyBruteForceLock+ip)
}
