//go:build integration

package ratelimit_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelborellis/mcp-registry/internal/ratelimit"
	"github.com/joelborellis/mcp-registry/pkg/testutil"
	"github.com/joelborellis/mcp-registry/pkg/testutil/containers"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
}

func TestLimiter_EnforcesWindowBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	redis := containers.NewRedisContainer(t)
	require.NoError(t, redis.FlushAll(context.Background()))

	const budget = 3
	limiter := ratelimit.New(redis.Client, budget, time.Minute, true, discardLogger())
	handler := limiter.Middleware(okHandler())
	principal := testutil.UserPrincipal()

	for i := 0; i < budget; i++ {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodPost, "/registrations"), principal)
		rr := testutil.DoRequest(handler, req)
		require.Equal(t, http.StatusCreated, rr.Code, "request %d should be within budget", i+1)
		assert.Equal(t, "3", rr.Header().Get("X-RateLimit-Limit"))
	}

	req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodPost, "/registrations"), principal)
	rr := testutil.DoRequest(handler, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", testutil.UnmarshalErrorResponse(t, rr)["error"])
}

func TestLimiter_KeysAreIndependentPerCaller(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	redis := containers.NewRedisContainer(t)
	require.NoError(t, redis.FlushAll(context.Background()))

	limiter := ratelimit.New(redis.Client, 1, time.Minute, true, discardLogger())
	handler := limiter.Middleware(okHandler())

	first := testutil.UserPrincipal()
	second := testutil.UserPrincipal()

	rr := testutil.DoRequest(handler, testutil.WithPrincipal(testutil.NewRequest(t, http.MethodPost, "/registrations"), first))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = testutil.DoRequest(handler, testutil.WithPrincipal(testutil.NewRequest(t, http.MethodPost, "/registrations"), first))
	require.Equal(t, http.StatusTooManyRequests, rr.Code, "same caller exhausted the budget")

	rr = testutil.DoRequest(handler, testutil.WithPrincipal(testutil.NewRequest(t, http.MethodPost, "/registrations"), second))
	assert.Equal(t, http.StatusCreated, rr.Code, "a different caller has a fresh budget")
}

func TestLimiter_DisabledPassesThrough(t *testing.T) {
	limiter := ratelimit.New(nil, 1, time.Minute, true, discardLogger())
	handler := limiter.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodPost, "/registrations"))
		require.Equal(t, http.StatusCreated, rr.Code)
	}
}
