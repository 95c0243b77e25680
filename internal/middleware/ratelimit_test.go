package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(rl.Stop)
	return rl
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/analytics/counts", nil)
	req.RemoteAddr = addr
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_AllowsRequestsWithinBurst(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{Rate: 2, Burst: 5, CleanupInterval: time.Minute})
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1:40000"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{Rate: 1, Burst: 2, CleanupInterval: time.Minute})
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1:40000"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:40001"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("429 body should be JSON: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})
	handler := rl.Middleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	if w.Code != http.StatusOK {
		t.Fatalf("first client: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.2:1"))
	if w.Code != http.StatusOK {
		t.Errorf("second client should have its own limit, status = %d", w.Code)
	}

	if n := rl.LimiterCount(); n != 2 {
		t.Errorf("LimiterCount = %d, want 2", n)
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Hour})
	rl.limiterFor("10.0.0.1")
	rl.limiterFor("10.0.0.2")

	// 期限内
	rl.cleanup(time.Now().Add(time.Hour))
	if n := rl.LimiterCount(); n != 2 {
		t.Fatalf("LimiterCount = %d, want 2", n)
	}

	// 期限切れ
	rl.cleanup(time.Now().Add(3 * time.Hour))
	if n := rl.LimiterCount(); n != 0 {
		t.Errorf("LimiterCount = %d, want 0", n)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	rl.Stop()
	rl.Stop()
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		if got := ClientKey(requestFrom(tt.addr)); got != tt.want {
			t.Errorf("ClientKey(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestPerMinuteConfig(t *testing.T) {
	cfg := PerMinuteConfig(120)
	if cfg.Rate != rate.Limit(2) {
		t.Errorf("Rate = %v, want 2", cfg.Rate)
	}
	if cfg.Burst != 120 {
		t.Errorf("Burst = %d, want 120", cfg.Burst)
	}

	if cfg := PerMinuteConfig(0); cfg.Burst != 1 {
		t.Errorf("Burst for 0 = %d, want 1", cfg.Burst)
	}

	def := DefaultRateLimiterConfig()
	if def.Burst != 120 || def.CleanupInterval != 5*time.Minute {
		t.Errorf("DefaultRateLimiterConfig = %+v", def)
	}
}
