package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker probes one dependency: the vector index, the ledger store
// or a model provider.
type HealthChecker interface {
	Name() string
	// Check returns nil when the dependency is usable. ctx carries the timeout.
	Check(ctx context.Context) error
	// Timeout overrides the registry default when non-zero.
	Timeout() time.Duration
}

// HealthStatus is the overall verdict.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult is one check's outcome.
type HealthCheckResult struct {
	Name    string        `json:"name"`
	Status  string        `json:"status"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}

// HealthReport is the JSON body of /healthz.
type HealthReport struct {
	Status    HealthStatus                 `json:"status"`
	Checks    map[string]HealthCheckResult `json:"checks"`
	Uptime    time.Duration                `json:"uptime"`
	Timestamp time.Time                    `json:"timestamp"`
}

// FuncHealthCheck adapts a function, typically Index.Health.
type FuncHealthCheck struct {
	CheckName    string
	Fn           func(ctx context.Context) error
	CheckTimeout time.Duration
}

// NewFuncHealthCheck wraps fn under name.
func NewFuncHealthCheck(name string, fn func(ctx context.Context) error) *FuncHealthCheck {
	return &FuncHealthCheck{CheckName: name, Fn: fn}
}

func (c *FuncHealthCheck) Name() string                    { return c.CheckName }
func (c *FuncHealthCheck) Check(ctx context.Context) error { return c.Fn(ctx) }
func (c *FuncHealthCheck) Timeout() time.Duration          { return c.CheckTimeout }

// HealthCheckRegistry runs registered checks concurrently.
type HealthCheckRegistry struct {
	mu      sync.RWMutex
	checks  map[string]HealthChecker
	timeout time.Duration
}

// NewHealthCheckRegistry creates a registry. A non-positive timeout means 5s.
func NewHealthCheckRegistry(timeout time.Duration) *HealthCheckRegistry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthCheckRegistry{checks: make(map[string]HealthChecker), timeout: timeout}
}

// Register adds or replaces a check by name.
func (r *HealthCheckRegistry) Register(check HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[check.Name()] = check
}

// Unregister removes a check.
func (r *HealthCheckRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checks, name)
}

// RunAll runs every check and reports unhealthy if any failed.
func (r *HealthCheckRegistry) RunAll(ctx context.Context) HealthReport {
	r.mu.RLock()
	checks := make([]HealthChecker, 0, len(r.checks))
	for _, c := range r.checks {
		checks = append(checks, c)
	}
	r.mu.RUnlock()
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name() < checks[j].Name() })

	report := HealthReport{
		Status:    HealthStatusHealthy,
		Checks:    make(map[string]HealthCheckResult, len(checks)),
		Uptime:    time.Since(startTime),
		Timestamp: time.Now(),
	}

	results := make([]HealthCheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c HealthChecker) {
			defer wg.Done()
			results[i] = r.run(ctx, c)
		}(i, c)
	}
	wg.Wait()

	for _, res := range results {
		report.Checks[res.Name] = res
		if res.Status != "ok" {
			report.Status = HealthStatusUnhealthy
		}
	}
	return report
}

func (r *HealthCheckRegistry) run(ctx context.Context, c HealthChecker) HealthCheckResult {
	timeout := c.Timeout()
	if timeout <= 0 {
		timeout = r.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := HealthCheckResult{Name: c.Name(), Status: "ok", Latency: time.Since(start)}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

// Handler serves the report as JSON, with 503 when unhealthy.
func (r *HealthCheckRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		report := r.RunAll(req.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status != HealthStatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}
