// Package health reports whether the session core can serve requests.
//
// Checks run concurrently under one timeout. The process is ready unless a
// check is unhealthy; a degraded check (for example a session that is
// authenticated without a profile) still serves traffic.
//
// # Example Usage
//
//	manager := health.NewManager("1.0.0", health.WithTimeout(2*time.Second))
//	manager.Register(health.NewPingChecker("profile_store", profiles.Ping))
//	manager.Register(health.NewPingChecker("redis", cache.Ping))
//	manager.Register(health.NewSessionChecker(controller))
//
//	e.GET("/healthz", echo.WrapHandler(manager.LiveHandler()))
//	e.GET("/ready", echo.WrapHandler(manager.ReadyHandler()))
//	e.GET("/health", echo.WrapHandler(manager.FullHandler()))
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/getkayan/mentorship/core/session"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents the result of a single health check.
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"-"`
	LatencyMs int64         `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
}

// Report is the aggregate of every check, sorted by name.
type Report struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

type Checker interface {
	Name() string
	Check(ctx context.Context) *Check
}

// CheckFunc is a function adapter for Checker.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) *Check
}

func (c CheckFunc) Name() string                     { return c.CheckName }
func (c CheckFunc) Check(ctx context.Context) *Check { return c.Fn(ctx) }

// ---- Health Manager ----

// Manager coordinates health checks.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	version  string
	timeout  time.Duration
}

type ManagerOption func(*Manager)

func NewManager(version string, opts ...ManagerOption) *Manager {
	m := &Manager{
		version: version,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithTimeout bounds a whole Check run.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = d
	}
}

func (m *Manager) Register(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

func (m *Manager) RegisterFunc(name string, fn func(ctx context.Context) *Check) {
	m.Register(CheckFunc{CheckName: name, Fn: fn})
}

// Check runs every checker concurrently. A checker that returns nil or
// panics counts as unhealthy.
func (m *Manager) Check(ctx context.Context) *Report {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	checks := make([]Check, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			checks[i] = run(ctx, c)
		}()
	}
	wg.Wait()

	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	report := &Report{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Checks:    checks,
	}
	for _, c := range checks {
		switch c.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status != StatusUnhealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func run(ctx context.Context, c Checker) (out Check) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Check{Name: c.Name(), Status: StatusUnhealthy, Message: "check panicked"}
		}
		out.Latency = time.Since(start)
		out.LatencyMs = out.Latency.Milliseconds()
		out.Timestamp = time.Now()
	}()

	check := c.Check(ctx)
	if check == nil {
		return Check{Name: c.Name(), Status: StatusUnhealthy}
	}
	return *check
}

// IsReady reports whether no check is unhealthy.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.Check(ctx).Status != StatusUnhealthy
}

// ---- HTTP Handlers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// LiveHandler answers 200 while the process runs.
func (m *Manager) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyHandler answers 503 when any check is unhealthy.
func (m *Manager) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.IsReady(r.Context()) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// FullHandler writes the whole report.
func (m *Manager) FullHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := m.Check(r.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

// ---- Built-in Checkers ----

// PingChecker is unhealthy when its ping fails. Used for the profile
// database and Redis.
type PingChecker struct {
	name   string
	pingFn func(ctx context.Context) error
}

func NewPingChecker(name string, pingFn func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, pingFn: pingFn}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) *Check {
	if err := c.pingFn(ctx); err != nil {
		return &Check{Name: c.name, Status: StatusUnhealthy, Message: err.Error()}
	}
	return &Check{Name: c.name, Status: StatusHealthy, Message: "connected"}
}

// SnapshotSource is satisfied by *session.Controller.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// SessionChecker reports the session controller state. Authenticated without
// a profile means the profile store failed during resolution: degraded.
type SessionChecker struct {
	source SnapshotSource
}

func NewSessionChecker(source SnapshotSource) *SessionChecker {
	return &SessionChecker{source: source}
}

func (c *SessionChecker) Name() string { return "session" }

func (c *SessionChecker) Check(ctx context.Context) *Check {
	snap := c.source.Snapshot()
	check := &Check{Name: c.Name(), Status: StatusHealthy, Message: string(snap.Status)}
	if snap.Authenticated() && snap.Profile == nil {
		check.Status = StatusDegraded
		check.Message = "authenticated without profile"
	}
	return check
}
