package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/arborhq/arbor/pkg/contextkeys"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRateLimiter_AllowWithinWindow(t *testing.T) {
	client := newTestRedis(t)
	limiter := NewRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
	}, "test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "user:alice")
		if err != nil {
			t.Fatalf("allow failed: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "user:alice")
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if allowed {
		t.Fatal("fourth request should be rejected")
	}

	// Another key has its own window.
	allowed, err = limiter.Allow(ctx, "user:bob")
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if !allowed {
		t.Fatal("a different key must not share the counter")
	}
}

func TestRateLimiter_Remaining(t *testing.T) {
	client := newTestRedis(t)
	limiter := NewRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
	}, "test")
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "user:alice")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("expected full quota 5, got %d", remaining)
	}

	if _, err := limiter.Allow(ctx, "user:alice"); err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	remaining, err = limiter.Remaining(ctx, "user:alice")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 4 {
		t.Fatalf("expected 4 remaining, got %d", remaining)
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	client := newTestRedis(t)
	limiter := NewRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	}, "test")
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "user:alice"); err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if allowed, _ := limiter.Allow(ctx, "user:alice"); allowed {
		t.Fatal("second request should be rejected")
	}

	if err := limiter.Reset(ctx, "user:alice"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if allowed, _ := limiter.Allow(ctx, "user:alice"); !allowed {
		t.Fatal("request after reset should be allowed")
	}
}

func TestRateLimitMiddleware_RejectsOverLimit(t *testing.T) {
	client := newTestRedis(t)
	m := &RateLimitMiddleware{
		userLimiter: NewRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "user"),
		anonLimiter: NewRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "anon"),
	}

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(contextkeys.WithUserID(req.Context(), "alice"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("second request: expected 200, got %d", rec.Code)
	}

	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on rejection")
	}
}

func TestRateLimitMiddleware_FailsOpenOnRedisError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	m := NewRateLimitMiddleware(client)

	mr.Close()

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected requests to pass when redis is down, got %d", rec.Code)
	}
}
