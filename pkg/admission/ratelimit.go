package admission

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/pushgate/internal/httpserver"
	"github.com/wisbric/pushgate/internal/telemetry"
)

// RateLimiter enforces a fixed-window request count per key using Redis
// INCR + EXPIRE, generalized from the admin login limiter to the data
// plane's per-client admission gate.
type RateLimiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
}

// NewRateLimiter creates a fixed-window rate limiter.
func NewRateLimiter(rdb *redis.Client, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: rdb, max: max, window: window}
}

type rateLimitState struct {
	count     int64
	remaining int
	resetAt   time.Time
}

func (rl *RateLimiter) hit(ctx context.Context, key string) (rateLimitState, error) {
	redisKey := "admission_ratelimit:" + key

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return rateLimitState{}, fmt.Errorf("incrementing rate limit counter: %w", err)
	}

	count := incr.Val()
	remainingTTL := ttl.Val()
	if count == 1 || remainingTTL < 0 {
		if err := rl.redis.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			return rateLimitState{}, fmt.Errorf("setting rate limit expiry: %w", err)
		}
		remainingTTL = rl.window
	}

	remaining := rl.max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return rateLimitState{count: count, remaining: remaining, resetAt: time.Now().Add(remainingTTL)}, nil
}

// rateLimit is the admission middleware: it keys on the client IP by
// default, applies the fixed window, and always exempts /health.
func (rl *RateLimiter) rateLimit(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			key := clientIP(r, trustProxy)
			state, err := rl.hit(r.Context(), key)
			if err != nil {
				httpserver.RespondError(w, http.StatusInternalServerError, "rate limit check failed")
				return
			}

			if state.count == 1 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.max))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(state.remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(state.resetAt.Unix(), 10))
			}

			if int(state.count) > rl.max {
				telemetry.RateLimitRejectionsTotal.Inc()
				retryAfter := int(time.Until(state.resetAt).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httpserver.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
