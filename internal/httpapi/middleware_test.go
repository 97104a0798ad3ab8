package httpapi

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
)

func serveOnce(h http.Handler, remoteAddr, xff string) int {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if remoteAddr != "" {
		r.RemoteAddr = remoteAddr
	}
	if xff != "" {
		r.Header.Set("X-Forwarded-For", xff)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec.Code
}

func TestRateLimitEnforcesBurst(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RateLimit(ok, 2, 1)

	for i := 0; i < 2; i++ {
		if code := serveOnce(h, "10.0.0.1:1234", ""); code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, code)
		}
	}
	if code := serveOnce(h, "10.0.0.1:1234", ""); code != http.StatusTooManyRequests {
		t.Fatalf("over-burst request: status %d", code)
	}
}

func TestRateLimitIsPerClientIP(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RateLimit(ok, 1, 1)

	if code := serveOnce(h, "", "1.1.1.1"); code != http.StatusOK {
		t.Fatalf("first client: status %d", code)
	}
	if code := serveOnce(h, "", "1.1.1.1"); code != http.StatusTooManyRequests {
		t.Fatalf("first client over burst: status %d", code)
	}
	// Another client keeps its own bucket.
	if code := serveOnce(h, "", "2.2.2.2"); code != http.StatusOK {
		t.Fatalf("second client: status %d", code)
	}
}

func TestRateLimitOwnsNoGoroutines(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	before := runtime.NumGoroutine()
	for i := 0; i < 100; i++ {
		h := RateLimit(ok, 1, 1)
		serveOnce(h, "10.0.0.1:1234", "")
	}
	if after := runtime.NumGoroutine(); after > before+10 {
		t.Fatalf("goroutines grew from %d to %d", before, after)
	}
}
