// Package health reports whether a long-running elk command is working.
//
// A Checker runs named component checks, folds their results into one
// Status and serves liveness, readiness and detailed health as JSON.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// Status is the state of one component or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

const defaultTimeout = 5 * time.Second

// CheckResult is the outcome of one check run.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Error       string         `json:"error,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
}

func failed(msg string, err error) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Message: msg, Error: err.Error()}
}

// Check inspects one component. It should return promptly once ctx is
// done.
type Check func(ctx context.Context) CheckResult

type component struct {
	critical bool
	check    Check
	timeout  time.Duration
	last     CheckResult
}

// Checker holds the registered components and their latest results.
type Checker struct {
	started time.Time

	mu         sync.RWMutex
	components map[string]*component
	ready      bool
}

func NewChecker() *Checker {
	return &Checker{started: time.Now(), components: make(map[string]*component)}
}

// Register adds or replaces a component. A failing critical component
// makes the process unhealthy; any other failure only degrades it.
func (c *Checker) Register(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = &component{
		critical: critical,
		check:    check,
		timeout:  defaultTimeout,
		last:     CheckResult{Status: StatusUnknown},
	}
}

// SetTimeout changes how long the named check may run.
func (c *Checker) SetTimeout(name string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if comp, ok := c.components[name]; ok {
		comp.timeout = d
	}
}

func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs every component concurrently, records the results and
// returns them by name.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	snapshot := make(map[string]*component, len(c.components))
	for name, comp := range c.components {
		snapshot[name] = comp
	}
	c.mu.RUnlock()

	type named struct {
		name   string
		result CheckResult
	}
	ch := make(chan named, len(snapshot))
	for name, comp := range snapshot {
		go func() {
			ch <- named{name, run(ctx, comp.check, comp.timeout)}
		}()
	}

	results := make(map[string]CheckResult, len(snapshot))
	for range snapshot {
		n := <-ch
		results[n.name] = n.result
	}

	c.mu.Lock()
	for name, r := range results {
		// Skip components replaced while their check ran.
		if c.components[name] == snapshot[name] {
			c.components[name].last = r
		}
	}
	c.mu.Unlock()
	return results
}

func run(ctx context.Context, check Check, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan CheckResult, 1)
	go func() { done <- check(ctx) }()

	var r CheckResult
	select {
	case r = <-done:
	case <-ctx.Done():
		r = failed("check timed out", ctx.Err())
	}
	r.LastChecked = time.Now()
	r.Duration = time.Since(start)
	return r
}

// OverallStatus folds the latest results. An unchecked critical component
// leaves the status unknown.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	overall := StatusHealthy
	for _, comp := range c.components {
		switch comp.last.Status {
		case StatusUnhealthy:
			if comp.critical {
				return StatusUnhealthy
			}
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		case StatusUnknown:
			if comp.critical {
				overall = StatusUnknown
			}
		}
	}
	return overall
}

// HealthResponse is the body served by HealthHandler.
type HealthResponse struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// HealthResponse runs the checks and reports the result.
func (c *Checker) HealthResponse(ctx context.Context) HealthResponse {
	results := c.Check(ctx)
	return HealthResponse{
		Status:     c.OverallStatus(),
		Ready:      c.IsReady(),
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Components: results,
		Timestamp:  time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func statusCode(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// LivenessHandler always answers 200.
func (c *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "alive", "timestamp": time.Now()})
	})
}

// ReadinessHandler answers 503 until SetReady(true) and while a critical
// component is unhealthy.
func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready"})
			return
		}
		c.Check(r.Context())
		status := c.OverallStatus()
		writeJSON(w, statusCode(status != StatusUnhealthy), map[string]any{"status": status, "ready": true})
	})
}

// HealthHandler serves a HealthResponse. Unhealthy and unknown answer 503.
func (c *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := c.HealthResponse(r.Context())
		ok := resp.Status == StatusHealthy || resp.Status == StatusDegraded
		writeJSON(w, statusCode(ok), resp)
	})
}

// DatabaseCheck reports whether ping succeeds.
func DatabaseCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return failed("database unreachable", err)
		}
		return CheckResult{Status: StatusHealthy, Message: "database reachable"}
	}
}

// DirectoriesCheck looks for the directories returned by dirs. Some of
// them missing is degraded; all of them missing is unhealthy.
func DirectoriesCheck(dirs func() []string) Check {
	return func(ctx context.Context) CheckResult {
		list := dirs()
		var missing []string
		for _, d := range list {
			if info, err := os.Stat(d); err != nil || !info.IsDir() {
				missing = append(missing, d)
			}
		}

		r := CheckResult{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d of %d directories present", len(list)-len(missing), len(list)),
			Details: map[string]any{"directories": list},
		}
		switch {
		case len(missing) == 0:
		case len(missing) == len(list):
			r.Status = StatusUnhealthy
			r.Details["missing"] = missing
		default:
			r.Status = StatusDegraded
			r.Details["missing"] = missing
		}
		return r
	}
}

// CustomCheck adapts a function that returns nil when all is well.
func CustomCheck(fn func() error) Check {
	return func(ctx context.Context) CheckResult {
		if err := fn(); err != nil {
			return failed("check failed", err)
		}
		return CheckResult{Status: StatusHealthy}
	}
}
