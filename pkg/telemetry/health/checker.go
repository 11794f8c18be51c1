package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// CheckFunc checks one component. A nil error means the component is usable.
type CheckFunc func(ctx context.Context) error

// Overall and per-check status values.
const (
	StatusHealthy     = "healthy"
	StatusReady       = "ready"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
	StatusOK          = "ok"
	StatusUnhealthy   = "unhealthy"
)

// DefaultCheckTimeout bounds a single check when New is given zero.
const DefaultCheckTimeout = 5 * time.Second

// ErrCheckTimeout is reported when a check does not finish in time.
var ErrCheckTimeout = errors.New("health check timeout")

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status     string  `json:"status"`
	Critical   bool    `json:"critical"`
	Message    string  `json:"message,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// HealthStatus is the body served by the health endpoints.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Serving reports whether the gateway can take traffic. A degraded gateway
// still serves; only a failed critical component makes it unavailable.
func (h HealthStatus) Serving() bool {
	return h.Status != StatusUnavailable
}

type component struct {
	check    CheckFunc
	critical bool
}

// Checker checks the components the gateway depends on. Critical components
// (the license store) gate readiness; optional ones (the usage cache) only
// degrade it.
type Checker struct {
	mu         sync.RWMutex
	components map[string]component
	timeout    time.Duration
}

// New creates a checker whose checks are each bounded by timeout.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Checker{
		components: make(map[string]component),
		timeout:    timeout,
	}
}

// RegisterCheck registers a critical component, replacing any check already
// registered under name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.register(name, check, true)
}

// RegisterOptionalCheck registers a component whose failure degrades the
// gateway without taking it out of rotation.
func (c *Checker) RegisterOptionalCheck(name string, check CheckFunc) {
	c.register(name, check, false)
}

func (c *Checker) register(name string, check CheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = component{check: check, critical: critical}
}

// UnregisterCheck removes the check registered under name.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.components, name)
}

// CheckLiveness reports that the process is up. It never touches components.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{Status: StatusHealthy, Timestamp: time.Now().UTC()}
}

// CheckReadiness runs every registered component concurrently.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	names := make([]string, 0, len(c.components))
	comps := make([]component, 0, len(c.components))
	for name, comp := range c.components {
		names = append(names, name)
		comps = append(comps, comp)
	}
	c.mu.RUnlock()

	results := make([]CheckResult, len(comps))
	var wg sync.WaitGroup
	for i, comp := range comps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, comp)
		}()
	}
	wg.Wait()

	status := StatusReady
	checks := make(map[string]CheckResult, len(results))
	for i, res := range results {
		checks[names[i]] = res
		if res.Status == StatusOK {
			continue
		}
		if res.Critical {
			status = StatusUnavailable
		} else if status == StatusReady {
			status = StatusDegraded
		}
	}

	return HealthStatus{Status: status, Checks: checks, Timestamp: time.Now().UTC()}
}

// run executes one check. Checks that ignore their context are abandoned once
// the timeout fires.
func (c *Checker) run(ctx context.Context, comp component) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- comp.check(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ErrCheckTimeout
	}

	res := CheckResult{
		Status:     StatusOK,
		Critical:   comp.critical,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	return res
}

// ListChecks returns the registered component names in sorted order.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckCount returns the number of registered components.
func (c *Checker) CheckCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.components)
}
