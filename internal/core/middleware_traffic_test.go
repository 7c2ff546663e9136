package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tipkoro/internal/config"
	"tipkoro/internal/types"
)

func rateLimitedHandler(srv *Server, called *bool) http.Handler {
	return srv.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimit_KeysByActor(t *testing.T) {
	srv := newTestServer(t)
	store := &MockRateLimitStore{Result: RateLimitResult{Allowed: true, Remaining: 9, ResetAt: time.Now().Add(time.Minute)}}
	srv.RateLimitStore = store

	called := false
	req := httptest.NewRequest(http.MethodGet, "/v1/me/balance", nil)
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{ID: "user_2abc", Type: types.ActorTypeUser}))
	rec := httptest.NewRecorder()
	rateLimitedHandler(srv, &called).ServeHTTP(rec, req)

	if !called {
		t.Fatal("allowed request should reach the handler")
	}
	if len(store.Calls) != 1 || store.Calls[0].Key != "user:user_2abc" {
		t.Fatalf("expected key user:user_2abc, got %+v", store.Calls)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "9" {
		t.Errorf("expected remaining 9, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_KeysAnonymousByIP(t *testing.T) {
	srv := newTestServer(t)
	store := &MockRateLimitStore{Result: RateLimitResult{Allowed: true}}
	srv.RateLimitStore = store

	called := false
	req := httptest.NewRequest(http.MethodPost, "/v1/tips/checkout", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rateLimitedHandler(srv, &called).ServeHTTP(httptest.NewRecorder(), req)

	if len(store.Calls) != 1 || store.Calls[0].Key != "ip:203.0.113.7" {
		t.Fatalf("expected key ip:203.0.113.7, got %+v", store.Calls)
	}
}

func TestRateLimit_UsesConfiguredBudget(t *testing.T) {
	cfg := &config.Config{}
	cfg.Redis.RateLimitRequests = 30
	cfg.Redis.RateLimitWindow = 10 * time.Second
	srv, err := NewServer(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	store := &MockRateLimitStore{Result: RateLimitResult{Allowed: true}}
	srv.RateLimitStore = store

	called := false
	rec := httptest.NewRecorder()
	rateLimitedHandler(srv, &called).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/creators/rafi", nil))

	if store.Calls[0].Limit != 30 || store.Calls[0].Window != 10*time.Second {
		t.Errorf("expected 30 per 10s, got %+v", store.Calls[0])
	}
	if rec.Header().Get("X-RateLimit-Limit") != "30" {
		t.Errorf("expected limit header 30, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_Exceeded(t *testing.T) {
	srv := newTestServer(t)
	srv.RateLimitStore = &MockRateLimitStore{Result: RateLimitResult{Allowed: false, ResetAt: time.Now().Add(30 * time.Second)}}

	called := false
	rec := httptest.NewRecorder()
	rateLimitedHandler(srv, &called).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/creators/rafi", nil))

	if called {
		t.Error("handler should not run when limited")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if got := decodeErrorCode(t, rec); got != string(types.ErrCodeRateLimit) {
		t.Errorf("expected rate_limit_exceeded, got %q", got)
	}
}

func TestRateLimit_StoreErrorFailsOpen(t *testing.T) {
	srv := newTestServer(t)
	srv.RateLimitStore = &MockRateLimitStore{Err: errors.New("redis down")}

	called := false
	rec := httptest.NewRecorder()
	rateLimitedHandler(srv, &called).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/creators/rafi", nil))

	if !called || rec.Code != http.StatusOK {
		t.Errorf("expected fail-open, called=%v code=%d", called, rec.Code)
	}
}

func TestRateLimit_HealthExempt(t *testing.T) {
	srv := newTestServer(t)
	store := &MockRateLimitStore{
		IncrementAndCheckFunc: func(context.Context, string, int, time.Duration) (RateLimitResult, error) {
			t.Error("health checks must not be counted")
			return RateLimitResult{}, nil
		},
	}
	srv.RateLimitStore = store

	called := false
	rateLimitedHandler(srv, &called).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if !called {
		t.Error("health request should pass")
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5123"
	if got := extractClientIP(req); got != "198.51.100.4" {
		t.Errorf("expected RemoteAddr host, got %q", got)
	}

	req.RemoteAddr = "bare-addr"
	if got := extractClientIP(req); got != "bare-addr" {
		t.Errorf("expected raw RemoteAddr, got %q", got)
	}
}
