package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tezrelay/relay/internal/presence"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Errorf("clientIP = %q, want %q", got, "10.0.0.1")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/test", nil)
	req2.RemoteAddr = "not-a-host-port"
	if got := clientIP(req2); got != "not-a-host-port" {
		t.Errorf("clientIP fallback = %q, want %q", got, "not-a-host-port")
	}
}

func TestWriteRateLimitResponse(t *testing.T) {
	w := httptest.NewRecorder()
	writeRateLimitResponse(w, authedRateWindow)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if ra := w.Header().Get("Retry-After"); ra == "" {
		t.Error("Retry-After header should be set")
	}
}

func TestSetRateLimitHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	result := presence.RateLimitResult{
		Allowed:   true,
		Limit:     120,
		Remaining: 100,
	}
	setRateLimitHeaders(w, result, authedRateWindow)

	if v := w.Header().Get("X-RateLimit-Limit"); v != "120" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", v, "120")
	}
	if v := w.Header().Get("X-RateLimit-Remaining"); v != "100" {
		t.Errorf("X-RateLimit-Remaining = %q, want %q", v, "100")
	}
	if v := w.Header().Get("X-RateLimit-Reset"); v == "" {
		t.Error("X-RateLimit-Reset should be set")
	}
}

func TestRateLimitGlobal_NoCache(t *testing.T) {
	s := &Server{Cache: nil}
	mw := s.RateLimitGlobal()

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called when cache is nil")
	}
}

func TestRateLimitShare_NoCache(t *testing.T) {
	s := &Server{Cache: nil}

	called := false
	handler := s.RateLimitShare(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called when cache is nil")
	}
}

func TestRateLimitSearch_NoCache(t *testing.T) {
	s := &Server{Cache: nil}

	called := false
	handler := s.RateLimitSearch(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called when cache is nil")
	}
}
