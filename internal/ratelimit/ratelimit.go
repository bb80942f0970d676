// Package ratelimit bounds submission volume per caller with a Redis
// fixed-window counter. The limiter fails open: if Redis is down the
// request proceeds, because losing rate limiting is cheaper than
// refusing all writes.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// Limiter counts requests per caller in fixed windows.
type Limiter struct {
	client   *redis.Client
	logger   *slog.Logger
	requests int
	window   time.Duration
	disabled bool
}

// New builds a limiter allowing requests per window per caller. A nil
// client or disabled config yields a pass-through limiter.
func New(client *redis.Client, requests int, window time.Duration, enabled bool, logger *slog.Logger) *Limiter {
	l := &Limiter{
		client:   client,
		logger:   logger,
		requests: requests,
		window:   window,
		disabled: !enabled || client == nil,
	}
	if l.disabled {
		logger.Info("rate limiting disabled")
	}
	return l
}

// Allow counts one request for key and reports whether it is within
// the window's budget, plus the remaining budget.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int, error) {
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(l.window.Seconds()))

	n, err := l.client.Incr(ctx, bucket).Result()
	if err != nil {
		return false, 0, fmt.Errorf("increment rate limit counter: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, bucket, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire rate limit counter: %w", err)
		}
	}

	remaining := l.requests - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return int(n) <= l.requests, remaining, nil
}

// Middleware enforces the limit per authenticated principal, falling
// back to the client IP for keys when no principal is present.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l.disabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key := requestcontext.ClientIP(ctx)
		if principal, ok := requestcontext.PrincipalFrom(ctx); ok {
			key = principal.UserID.String()
		}

		allowed, remaining, err := l.Allow(ctx, key)
		if err != nil {
			l.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited","error_description":"too many requests, slow down"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
