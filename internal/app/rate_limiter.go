package app

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter counts requests per subject in a fixed window. The window
// opens on the first hit and every later hit inside it shares its expiry.
type RedisRateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	ns := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if ns == "" {
		ns = "zense"
	}
	return &RedisRateLimiter{client: client, keyPrefix: ns + ":rate_limit:"}
}

func (r *RedisRateLimiter) bucket(scope, subject string) string {
	return r.keyPrefix + scope + ":" + subject
}

// ConsumeRateLimit records one hit and returns the count in the current window
// together with the seconds until it resets. A nil limiter never limits.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, window time.Duration) (int, int, error) {
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if r == nil || r.client == nil || window <= 0 || scope == "" || subject == "" {
		return 0, 0, nil
	}
	if window < time.Second {
		window = time.Second
	}

	key := r.bucket(scope, subject)
	var (
		hits *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	// SET NX opens the window; the MULTI keeps the three commands together.
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		hits = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = window
	}
	seconds := int((remaining + time.Second - 1) / time.Second)
	return int(hits.Val()), max(seconds, 1), nil
}
