// Package handlers contains HTTP handler interfaces and implementations.
package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// HealthChecker reports whether the service can serve traffic. The server
// treats a nil checker as always healthy.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc probes one dependency and returns an error on failure.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated result served on /health and /ready.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of a single dependency probe.
type CheckResult struct {
	Healthy     bool      `json:"healthy"`
	Message     string    `json:"message,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// CompositeHealthChecker probes every registered dependency and reports
// unhealthy when any probe fails. Probes run concurrently, each under its
// own timeout, so one hung dependency cannot stall the whole endpoint.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	probes    map[string]HealthCheckFunc
	startedAt time.Time
	version   string
	timeout   time.Duration
}

// NewCompositeHealthChecker creates a checker with no registered probes.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		probes:    make(map[string]HealthCheckFunc),
		startedAt: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// SetTimeout overrides the per-probe timeout.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// AddCheck registers a named probe, replacing any previous one.
func (c *CompositeHealthChecker) AddCheck(name string, probe HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Check runs all probes and aggregates the results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	probes := make(map[string]HealthCheckFunc, len(c.probes))
	for name, probe := range c.probes {
		probes[name] = probe
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(probes)),
		Uptime:    time.Since(c.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	if len(probes) == 0 {
		status.Message = "no probes registered"
		return status
	}

	var wg sync.WaitGroup
	var resultsMu sync.Mutex
	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe HealthCheckFunc) {
			defer wg.Done()
			result := c.runProbe(ctx, probe)
			resultsMu.Lock()
			status.Checks[name] = result
			resultsMu.Unlock()
		}(name, probe)
	}
	wg.Wait()

	var failed []string
	for name, result := range status.Checks {
		if !result.Healthy {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		status.Healthy = false
		status.Ready = false
		status.Message = "failed: " + strings.Join(failed, ", ")
	} else {
		status.Message = "ok"
	}

	return status
}

func (c *CompositeHealthChecker) runProbe(ctx context.Context, probe HealthCheckFunc) CheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := probe(probeCtx)

	result := CheckResult{
		Healthy:     err == nil,
		Message:     "ok",
		Duration:    time.Since(start).Round(time.Millisecond).String(),
		LastChecked: time.Now().UTC(),
	}
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// Pinger is satisfied by the postgres pool and the redis client alike.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewDatabaseCheck probes the progress database.
func NewDatabaseCheck(db Pinger) HealthCheckFunc {
	return func(ctx context.Context) error {
		return db.Ping(ctx)
	}
}

// NewCacheCheck probes the saga view cache.
func NewCacheCheck(cache Pinger) HealthCheckFunc {
	return func(ctx context.Context) error {
		return cache.Ping(ctx)
	}
}
