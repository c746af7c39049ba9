package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	rl := NewRateLimiter(0.01, 2)
	defer rl.Stop()
	handler := rl.Middleware(nil)(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the burst, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on 429")
	}
}

func TestRateLimiterKeysClientsIndependently(t *testing.T) {
	rl := NewRateLimiter(0.01, 1)
	defer rl.Stop()
	handler := rl.Middleware(func(r *http.Request) string {
		return r.Header.Get("X-Client")
	})(okHandler())

	send := func(client string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Client", client)
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("a"); code != http.StatusOK {
		t.Fatalf("first request for a: expected 200, got %d", code)
	}
	if code := send("a"); code != http.StatusTooManyRequests {
		t.Fatalf("second request for a: expected 429, got %d", code)
	}
	// A different key carries its own bucket.
	if code := send("b"); code != http.StatusOK {
		t.Fatalf("first request for b: expected 200, got %d", code)
	}
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Stop()
	rl.Stop()
}
