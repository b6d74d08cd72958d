package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/logging"
)

func TestRateLimiterAllowsBurstThenRejects(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < LoginPolicy.Limit; i++ {
		d, err := rl.Allow(ctx, LoginPolicy, "ip:1.2.3.4")
		require.NoError(t, err)
		require.True(t, d.Allowed, "attempt %d", i+1)
	}
	d, err := rl.Allow(ctx, LoginPolicy, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.InDelta(t, (3 * time.Minute).Seconds(), d.RetryAfter.Seconds(), 1)

	other, err := rl.Allow(ctx, LoginPolicy, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	clock = clock.Add(3 * time.Minute)
	d, err = rl.Allow(ctx, LoginPolicy, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "one token refills per window/limit")
}

func TestRateLimiterPoliciesAreIndependent(t *testing.T) {
	rl := NewRateLimiter()
	ctx := context.Background()
	for i := 0; i < RegisterPolicy.Limit; i++ {
		d, _ := rl.Allow(ctx, RegisterPolicy, "user:a")
		require.True(t, d.Allowed)
	}
	d, _ := rl.Allow(ctx, RegisterPolicy, "user:a")
	assert.False(t, d.Allowed)

	d, _ = rl.Allow(ctx, RefreshPolicy, "user:a")
	assert.True(t, d.Allowed)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	ctx := context.Background()

	_, _ = rl.Allow(ctx, RefreshPolicy, "user:a")
	_, _ = rl.Allow(ctx, LoginPolicy, "ip:b")
	require.Equal(t, 2, rl.Len())

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 1, rl.Cleanup(), "refresh bucket idle past its window")
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimitMiddlewareHeaders(t *testing.T) {
	mw := NewRateLimit(NewRateLimiter(), logging.Discard())
	handler := mw.Handler(RegisterPolicy, ByUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", nil)
		req = req.WithContext(WithUser(req.Context(), user.User{ID: "admin-1", Role: user.RoleAdmin}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		rec := send()
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := send()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "RATE_LIMITED", errorType(t, rec))
	assert.Contains(t, rec.Body.String(), "Too many requests")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, Policy, string) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestRateLimitFailsOpen(t *testing.T) {
	handler := NewRateLimit(failingLimiter{}, logging.Discard()).Handler(LoginPolicy, ByIP)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIPIgnoresHeadersFromUntrustedPeer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("X-Real-IP", "172.16.0.9")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	assert.Equal(t, "203.0.113.7", ClientIP(req))
	assert.Equal(t, "ip:203.0.113.7", ByUser(req))

	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", proxies.ClientIP(req))
}

func TestClientIPWalksForwardedForBehindTrustedProxy(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "127.0.0.1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 203.0.113.7, 10.0.0.5")
	assert.Equal(t, "203.0.113.7", proxies.ClientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "172.16.0.9")
	assert.Equal(t, "172.16.0.9", proxies.ClientIP(req))

	req.Header.Del("X-Real-IP")
	assert.Equal(t, "10.0.0.2", proxies.ClientIP(req))

	req.RemoteAddr = "127.0.0.1:80"
	req.Header.Set("X-Forwarded-For", "192.0.2.4")
	assert.Equal(t, "ip:192.0.2.4", proxies.ByIP(req))
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)

	tp, err := ParseTrustedProxies([]string{" ", ""})
	require.NoError(t, err)
	assert.Empty(t, tp.nets)
}

func TestLoginLimitIgnoresRotatingForwardedFor(t *testing.T) {
	handler := NewRateLimit(NewRateLimiter(), logging.Discard()).Handler(LoginPolicy, ByIP)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }))

	for i := 1; i <= LoginPolicy.Limit+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", "10.0.0."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i <= LoginPolicy.Limit {
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code, "attempt %d", i)
		}
	}
}

func TestRedisLimiter(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis limiter test")
	}
	ctx := context.Background()
	rl, err := NewRedisLimiter(ctx, url)
	require.NoError(t, err)
	defer rl.Stop(ctx)

	policy := Policy{Name: "test-" + time.Now().Format("150405.000000"), Limit: 2, Window: time.Minute}
	for i := 0; i < 2; i++ {
		d, err := rl.Allow(ctx, policy, "k")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := rl.Allow(ctx, policy, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.RetryAfter > 0 && d.RetryAfter <= time.Minute)
}
