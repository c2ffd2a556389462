package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/markdave123-py/prescodata/internal/api/respond"
	"github.com/markdave123-py/prescodata/internal/auth"
	"github.com/markdave123-py/prescodata/internal/logging"
	"github.com/markdave123-py/prescodata/internal/models"
)

var rs = respond.New(logging.Discard(), false)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAPIKey(t *testing.T) {
	cases := []struct {
		name, key, header string
		status            int
	}{
		{"match", "k3y", "k3y", http.StatusNoContent},
		{"missing", "k3y", "", http.StatusForbidden},
		{"mismatch", "k3y", "k3y!", http.StatusForbidden},
		{"unset key rejects all", "", "", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			h := APIKey(tc.key, rs)(okHandler(&called))
			req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
			if tc.header != "" {
				req.Header.Set(APIKeyHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status %d, want %d", rec.Code, tc.status)
			}
			if called != (tc.status == http.StatusNoContent) {
				t.Fatalf("next handler called = %v", called)
			}
		})
	}
}

func TestJWTMiddleware(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	good, err := tokens.Issue(&models.User{ID: "u-1", Email: "ops@x.io"})
	if err != nil {
		t.Fatal(err)
	}

	var seen *auth.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
	})
	h := JWTMiddleware(tokens, rs)(next)

	for _, header := range []string{"", "Token " + good, "Bearer nope", "Bearer " + good + "x"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status %d", header, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	req.Header.Set("Authorization", "Bearer "+good)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen == nil || seen.Email != "ops@x.io" {
		t.Fatalf("status %d, claims %+v", rec.Code, seen)
	}
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	called := false
	h := l.Handler(rs)(okHandler(&called))
	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1:1234"); code != http.StatusNoContent {
			t.Fatalf("request %d: status %d", i, code)
		}
	}
	if code := do("10.0.0.1:5678"); code != http.StatusTooManyRequests {
		t.Fatalf("burst exceeded but got %d", code)
	}
	if code := do("10.0.0.2:1234"); code != http.StatusNoContent {
		t.Fatalf("other client throttled: %d", code)
	}

	now = now.Add(time.Second)
	if code := do("10.0.0.1:1234"); code != http.StatusNoContent {
		t.Fatalf("bucket did not refill: %d", code)
	}

	now = now.Add(time.Hour)
	do("10.0.0.3:1")
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.visitors) != 1 {
		t.Fatalf("idle visitors kept: %d", len(l.visitors))
	}
}

func TestSecurityHeaders(t *testing.T) {
	called := false
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler(&called)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") == "" {
		t.Fatalf("headers = %v", rec.Header())
	}
}

func TestRequestLogger(t *testing.T) {
	called := false
	rec := httptest.NewRecorder()
	RequestLogger(logging.Discard())(okHandler(&called)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !called || rec.Code != http.StatusNoContent {
		t.Fatalf("called %v, status %d", called, rec.Code)
	}
}

func TestRateLimiterSweepsOncePerInterval(t *testing.T) {
	l := NewRateLimiter(100, 100)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	l.now = func() time.Time { return now }
	visitors := func() int {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.visitors)
	}

	l.allow("10.0.0.1")
	now = start.Add(14*time.Minute + 59*time.Second)
	l.allow("10.0.0.2")

	// 10.0.0.1 is now idle past the limit, but the last sweep was 31s ago.
	now = start.Add(15*time.Minute + 30*time.Second)
	l.allow("10.0.0.3")
	if n := visitors(); n != 3 {
		t.Fatalf("swept between intervals: %d visitors", n)
	}

	now = start.Add(16 * time.Minute)
	l.allow("10.0.0.4")
	if n := visitors(); n != 3 {
		t.Fatalf("idle visitor kept after the interval: %d visitors", n)
	}
	l.mu.Lock()
	_, kept := l.visitors["10.0.0.1"]
	l.mu.Unlock()
	if kept {
		t.Fatal("10.0.0.1 should have been dropped")
	}
}
