package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout caps the whole /health request, not each probe.
const healthCheckTimeout = 2 * time.Second

var errProbeTimedOut = errors.New("health check timed out")

// HealthProbe checks one backend the API cannot serve without, such as
// Postgres or Redis.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// PingProbe adapts a Ping-style call (pgxpool.Pool.Ping, redis Ping) into a
// HealthProbe.
type PingProbe struct {
	name string
	ping func(ctx context.Context) error
}

func NewPingProbe(name string, ping func(ctx context.Context) error) PingProbe {
	return PingProbe{name: name, ping: ping}
}

func (p PingProbe) Name() string { return p.name }

func (p PingProbe) Check(ctx context.Context) error {
	if p.ping == nil {
		return fmt.Errorf("%s: no check configured", p.name)
	}
	return p.ping(ctx)
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe in parallel under healthCheckTimeout. Any
// failing, panicking or unfinished probe turns the response into a 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	errs := s.runProbes(ctx)

	resp := healthResponse{Status: "healthy"}
	status := http.StatusOK
	if len(s.HealthProbes) > 0 {
		resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	}
	for i, p := range s.HealthProbes {
		if errs[i] == nil {
			resp.Components[p.Name()] = componentStatus{Status: "healthy"}
			continue
		}
		resp.Status, status = "unhealthy", http.StatusServiceUnavailable
		resp.Components[p.Name()] = componentStatus{Status: "unhealthy", Message: errs[i].Error()}
	}
	JSON(w, r, status, resp)
}

// runProbes returns one error per probe, by index. Probes still running when
// ctx expires report errProbeTimedOut.
func (s *Server) runProbes(ctx context.Context) []error {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs = make([]error, len(s.HealthProbes))
		done = make([]bool, len(s.HealthProbes))
	)
	for i, p := range s.HealthProbes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := checkProbe(ctx, p)
			mu.Lock()
			errs[i], done[i] = err, true
			mu.Unlock()
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]error, len(errs))
	for i := range errs {
		if !done[i] {
			out[i] = errProbeTimedOut
			continue
		}
		out[i] = errs[i]
	}
	return out
}

func checkProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}
