package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockHealthProbe struct {
	name     string
	checkErr error
	delay    time.Duration
	panics   bool
}

func (m *mockHealthProbe) Name() string { return m.name }

func (m *mockHealthProbe) Check(ctx context.Context) error {
	if m.panics {
		panic("probe exploded")
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.checkErr
}

func runHealth(t *testing.T, probes ...HealthProbe) (int, healthResponse) {
	t.Helper()
	srv := newTestServer(t)
	srv.HealthProbes = probes

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return rec.Code, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	code, resp := runHealth(t)
	if code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected healthy, got %q", resp.Status)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	code, resp := runHealth(t,
		&mockHealthProbe{name: "database"},
		NewPingProbe("redis", func(context.Context) error { return nil }),
	)
	if code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	for _, name := range []string{"database", "redis"} {
		if resp.Components[name].Status != "healthy" {
			t.Errorf("expected %s healthy, got %+v", name, resp.Components[name])
		}
	}
}

func TestHandleHealth_OneUnhealthy(t *testing.T) {
	code, resp := runHealth(t,
		&mockHealthProbe{name: "database"},
		NewPingProbe("redis", func(context.Context) error { return errors.New("connection refused") }),
	)
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", code)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %q", resp.Status)
	}
	if got := resp.Components["redis"]; got.Status != "unhealthy" || got.Message != "connection refused" {
		t.Errorf("unexpected redis component: %+v", got)
	}
	if resp.Components["database"].Status != "healthy" {
		t.Error("database should stay healthy")
	}
}

func TestHandleHealth_Timeout(t *testing.T) {
	start := time.Now()
	code, resp := runHealth(t, &mockHealthProbe{name: "database", delay: 10 * time.Second})

	if elapsed := time.Since(start); elapsed > healthCheckTimeout+time.Second {
		t.Errorf("health check took %v, expected it to respect the timeout", elapsed)
	}
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", code)
	}
	if resp.Components["database"].Status != "unhealthy" {
		t.Errorf("expected database unhealthy, got %+v", resp.Components["database"])
	}
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	code, resp := runHealth(t, &mockHealthProbe{name: "database", panics: true})
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", code)
	}
	if resp.Components["database"].Status != "unhealthy" {
		t.Errorf("expected database unhealthy, got %+v", resp.Components["database"])
	}
}

func TestPingProbe_NilPing(t *testing.T) {
	p := NewPingProbe("redis", nil)
	if p.Name() != "redis" {
		t.Errorf("expected name redis, got %q", p.Name())
	}
	if err := p.Check(context.Background()); err == nil {
		t.Error("expected error for probe without a check")
	}
}
