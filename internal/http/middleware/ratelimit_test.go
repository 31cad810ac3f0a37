package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterRefills(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return clock }

	if !rl.Allow("org-1") || !rl.Allow("org-1") {
		t.Fatalf("expected burst of 2 to pass")
	}
	if rl.Allow("org-1") {
		t.Fatalf("expected third request to be limited")
	}
	if !rl.Allow("org-2") {
		t.Fatalf("expected other key to have its own bucket")
	}
	clock = clock.Add(time.Second)
	if !rl.Allow("org-1") {
		t.Fatalf("expected a token after one second")
	}
}

func TestRateLimiterEvict(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Allow("a")
	rl.Evict(time.Now().Add(time.Minute))
	if len(rl.buckets) != 0 {
		t.Fatalf("expected buckets evicted, got %d", len(rl.buckets))
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mw := RateLimit(NewRateLimiter(0, 1), func(r *http.Request) string { return r.URL.Path })
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/webhooks/telegram/org-1", nil))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/webhooks/telegram/org-1", nil))

	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
}
