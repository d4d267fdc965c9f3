package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/safecommute/pkg/resilience"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Pinger is any dependency that can answer a connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyStatus represents the health status of a single dependency
type DependencyStatus struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Critical  bool          `json:"critical"`
	Latency   time.Duration `json:"latency_ms"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// DeepHealthStatus represents the complete health status of the service
type DeepHealthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version,omitempty"`
	Uptime       time.Duration               `json:"uptime_seconds"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
	Breakers     map[string]BreakerStatus    `json:"circuit_breakers,omitempty"`
	CheckedAt    time.Time                   `json:"checked_at"`
}

// BreakerStatus represents the status of a circuit breaker
type BreakerStatus struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Allows bool   `json:"allows_requests"`
}

type dependency struct {
	pinger   Pinger
	critical bool
}

// DeepChecker probes the service's dependencies and upstream breakers.
// Results are cached for CacheTTL so probes do not hammer dependencies.
type DeepChecker struct {
	service      string
	version      string
	startTime    time.Time
	timeout      time.Duration
	cacheTTL     time.Duration
	mu           sync.RWMutex
	dependencies map[string]dependency
	breakers     map[string]*resilience.CircuitBreaker
	lastResult   *DeepHealthStatus
	lastChecked  time.Time
}

// DeepCheckerConfig holds configuration for the deep checker
type DeepCheckerConfig struct {
	Service  string
	Version  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DefaultDeepCheckerConfig returns sensible defaults
func DefaultDeepCheckerConfig() DeepCheckerConfig {
	return DeepCheckerConfig{
		Version:  "unknown",
		Timeout:  2 * time.Second,
		CacheTTL: 5 * time.Second,
	}
}

// NewDeepChecker creates a new deep health checker
func NewDeepChecker(config DeepCheckerConfig) *DeepChecker {
	return &DeepChecker{
		service:      config.Service,
		version:      config.Version,
		startTime:    time.Now(),
		timeout:      config.Timeout,
		cacheTTL:     config.CacheTTL,
		dependencies: make(map[string]dependency),
		breakers:     make(map[string]*resilience.CircuitBreaker),
	}
}

// AddDependency registers a dependency. A failing critical dependency makes
// the service unready; a failing optional one only degrades it.
func (d *DeepChecker) AddDependency(name string, pinger Pinger, critical bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dependencies[name] = dependency{pinger: pinger, critical: critical}
	d.lastResult = nil
}

// AddCircuitBreaker adds a circuit breaker to monitor
func (d *DeepChecker) AddCircuitBreaker(name string, breaker *resilience.CircuitBreaker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakers[name] = breaker
	d.lastResult = nil
}

// Check performs a deep health check on all dependencies
func (d *DeepChecker) Check(ctx context.Context) *DeepHealthStatus {
	d.mu.RLock()
	if d.lastResult != nil && time.Since(d.lastChecked) < d.cacheTTL {
		result := d.lastResult
		d.mu.RUnlock()
		return result
	}
	dependencies := make(map[string]dependency, len(d.dependencies))
	for name, dep := range d.dependencies {
		dependencies[name] = dep
	}
	breakers := make(map[string]*resilience.CircuitBreaker, len(d.breakers))
	for name, breaker := range d.breakers {
		breakers[name] = breaker
	}
	d.mu.RUnlock()

	status := &DeepHealthStatus{
		Status:       StatusHealthy,
		Service:      d.service,
		Version:      d.version,
		Uptime:       time.Since(d.startTime),
		Dependencies: make(map[string]DependencyStatus, len(dependencies)),
		Breakers:     make(map[string]BreakerStatus, len(breakers)),
		CheckedAt:    time.Now(),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, dep := range dependencies {
		wg.Add(1)
		go func(name string, dep dependency) {
			defer wg.Done()
			depStatus := d.ping(ctx, name, dep)

			mu.Lock()
			defer mu.Unlock()
			status.Dependencies[name] = depStatus
			if depStatus.Status != StatusHealthy {
				if dep.critical {
					status.Status = StatusUnhealthy
				} else if status.Status == StatusHealthy {
					status.Status = StatusDegraded
				}
			}
		}(name, dep)
	}
	wg.Wait()

	for name, breaker := range breakers {
		allows := breaker.Allow()
		state := "closed"
		if !allows {
			state = "open"
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}
		status.Breakers[name] = BreakerStatus{Name: name, State: state, Allows: allows}
	}

	d.mu.Lock()
	d.lastResult = status
	d.lastChecked = time.Now()
	d.mu.Unlock()

	return status
}

func (d *DeepChecker) ping(ctx context.Context, name string, dep dependency) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{Name: name, Critical: dep.critical, CheckedAt: start}

	checkCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := dep.pinger.Ping(checkCtx); err != nil {
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("ping failed: %v", err)
	} else {
		status.Status = StatusHealthy
	}
	status.Latency = time.Since(start)
	return status
}

// IsReady returns true if every critical dependency is healthy
func (d *DeepChecker) IsReady(ctx context.Context) bool {
	return d.Check(ctx).Status != StatusUnhealthy
}

// LiveHandler answers liveness probes without touching dependencies.
func (d *DeepChecker) LiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  StatusHealthy,
			"service": d.service,
			"version": d.version,
		})
	}
}

// ReadyHandler answers 503 while a critical dependency is down.
func (d *DeepChecker) ReadyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := d.Check(c.Request.Context())
		httpStatus := http.StatusOK
		if status.Status == StatusUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, status)
	}
}
