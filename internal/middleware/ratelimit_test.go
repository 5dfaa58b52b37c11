package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func limitedHandler(limit int) http.Handler {
	rl := NewRateLimiter(limit, time.Minute)
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
}

func hit(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/books/x/wizard/generate", nil)
	req.RemoteAddr = addr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_BlocksBeyondBudget(t *testing.T) {
	h := limitedHandler(2)

	for i := 0; i < 2; i++ {
		if rr := hit(h, "10.0.0.1:1234"); rr.Code != http.StatusAccepted {
			t.Fatalf("Request %d: expected 202, got %d", i+1, rr.Code)
		}
	}

	rr := hit(h, "10.0.0.1:1234")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 past the budget, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected a Retry-After header on the limited response")
	}
}

func TestRateLimiter_BudgetsPerClient(t *testing.T) {
	h := limitedHandler(1)

	hit(h, "10.0.0.1:1234")
	if rr := hit(h, "10.0.0.1:1234"); rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected the first client limited, got %d", rr.Code)
	}
	if rr := hit(h, "10.0.0.2:1234"); rr.Code != http.StatusAccepted {
		t.Errorf("Expected a different client unaffected, got %d", rr.Code)
	}
}

func TestRateLimiter_WindowRollsOver(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if _, ok := rl.allow("10.0.0.1"); !ok {
		t.Fatal("Expected the first request allowed")
	}
	if _, ok := rl.allow("10.0.0.1"); ok {
		t.Fatal("Expected the second request in the window blocked")
	}

	rl.mu.Lock()
	rl.clients["10.0.0.1"].start = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	if _, ok := rl.allow("10.0.0.1"); !ok {
		t.Error("Expected a fresh window after expiry")
	}
}
