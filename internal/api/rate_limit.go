package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RequestLimiter counts hits against a per-subject window.
type RequestLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// IPRateLimit caps requests per client address across the routes it wraps.
// Limiter errors let the request through. Mount it after middleware.RealIP
// so proxied clients are counted by their own address.
func IPRateLimit(limiter RequestLimiter, scope string, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, ip, window)
			if err != nil {
				logger.Warn("ip rate limiter unavailable", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(limit-count, 0)))
			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
