package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestRateLimiter(burst int) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    burst,
		CleanupInterval: time.Minute,
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(3)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/news", nil)
		req.RemoteAddr = "203.0.113.10:51000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestGeneralMiddleware_ExceedingBurst_TooManyRequests(t *testing.T) {
	rl := newTestRateLimiter(1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/news", nil)
	req.RemoteAddr = "203.0.113.10:51000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}
}

func TestGeneralMiddleware_SeparateBucketsPerClient(t *testing.T) {
	rl := newTestRateLimiter(1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// 1番目のクライアントがバーストを使い切る
	req := httptest.NewRequest(http.MethodGet, "/api/news", nil)
	req.RemoteAddr = "203.0.113.10:51000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("first client should be limited, status = %d", rec.Code)
	}

	// 別クライアントには影響しない
	other := httptest.NewRequest(http.MethodGet, "/api/news", nil)
	other.RemoteAddr = "203.0.113.20:51000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", rec.Code)
	}

	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}
}

func TestClientAddr_StripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.10:51000"
	if got := clientAddr(req); got != "203.0.113.10" {
		t.Errorf("clientAddr = %q", got)
	}

	// ポートなしのアドレスはそのまま返す
	req.RemoteAddr = "203.0.113.10"
	if got := clientAddr(req); got != "203.0.113.10" {
		t.Errorf("clientAddr(no port) = %q", got)
	}
}
