// Package limiter throttles authentication attempts per email address using
// a fixed window counter in Redis.
package limiter

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Config holds the per-address limit settings.
type Config struct {
	// MaxAttempts is the number of attempts allowed within one window.
	MaxAttempts int
	// Window is the length of the fixed window.
	Window time.Duration
}

// AddrLimiter counts attempts per normalized email address. State lives
// entirely in Redis; the limiter itself is stateless and safe for
// concurrent use.
type AddrLimiter struct {
	redis *redis.Client
	cfg   Config
}

// New creates an AddrLimiter backed by the given Redis client.
func New(redisClient *redis.Client, cfg Config) *AddrLimiter {
	return &AddrLimiter{
		redis: redisClient,
		cfg:   cfg,
	}
}

// Check records one attempt for addr and reports whether it is still within
// the configured limit. Store errors are returned unchanged to the caller.
func (l *AddrLimiter) Check(ctx context.Context, addr string) (bool, error) {
	key := addrKey(addr)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(err, "[AddrLimiter.Check] redis incr")
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cfg.Window).Err(); err != nil {
			return false, errors.Wrap(err, "[AddrLimiter.Check] redis expire")
		}
	}

	return count <= int64(l.cfg.MaxAttempts), nil
}

func addrKey(addr string) string {
	return "ratelimit:addr:" + addr
}
