package observability

import (
	"sync"
	"time"

	"ordergate/internal/resilience"
)

type RouteSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// DependencySnapshot combines live breaker state with transition counters.
type DependencySnapshot struct {
	State               resilience.State `json:"state"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	Opens               int64            `json:"opens"`
	Transitions         int64            `json:"transitions"`
}

type Snapshot struct {
	UptimeSec       int64                         `json:"uptime_sec"`
	TotalRequests   int64                         `json:"total_requests"`
	TotalErrors     int64                         `json:"total_errors"`
	InFlight        int64                         `json:"in_flight"`
	RateLimitWaits  int64                         `json:"rate_limit_waits"`
	RateLimitWaitMs int64                         `json:"rate_limit_wait_ms"`
	Replays         int64                         `json:"idempotent_replays"`
	Lifecycle       *LifecycleSnapshot            `json:"lifecycle,omitempty"`
	Routes          map[string]RouteSnapshot      `json:"routes"`
	Dependencies    map[string]DependencySnapshot `json:"dependencies"`
}

type routeStats struct {
	count        int64
	errors       int64
	inFlight     int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

type dependencyStats struct {
	opens       int64
	transitions int64
}

// Metrics collects in-process counters for routes and dependencies.
type Metrics struct {
	mu             sync.Mutex
	start          time.Time
	routes         map[string]*routeStats
	dependencies   map[string]*dependencyStats
	breakers       map[string]*resilience.CircuitBreaker
	rateLimitWaits int64
	rateLimitWait  time.Duration
	replays        int64
	lifecycle      lifecycleStats
}

type CallSpan struct {
	metrics *Metrics
	route   string
	start   time.Time
}

type lifecycleStats struct {
	shutdownAt time.Time
	inflight   int64
}

type LifecycleSnapshot struct {
	ShutdownAt         time.Time `json:"shutdown_at"`
	InFlightAtShutdown int64     `json:"inflight_at_shutdown"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		start:        time.Now(),
		routes:       make(map[string]*routeStats),
		dependencies: make(map[string]*dependencyStats),
		breakers:     make(map[string]*resilience.CircuitBreaker),
	}
}

func (m *Metrics) Start(route string) *CallSpan {
	if m == nil {
		return &CallSpan{}
	}
	m.mu.Lock()
	stats := m.ensureRoute(route)
	stats.inFlight++
	m.mu.Unlock()
	return &CallSpan{
		metrics: m,
		route:   route,
		start:   time.Now(),
	}
}

// End records the call. failed marks it as an error.
func (s *CallSpan) End(failed bool) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.finish(s.route, time.Since(s.start), failed)
}

func (m *Metrics) AddRateLimitWait(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.mu.Lock()
	m.rateLimitWaits++
	m.rateLimitWait += d
	m.mu.Unlock()
}

func (m *Metrics) IncReplay() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.replays++
	m.mu.Unlock()
}

// TrackBreaker includes the breaker's live state in snapshots.
func (m *Metrics) TrackBreaker(b *resilience.CircuitBreaker) {
	if m == nil || b == nil {
		return
	}
	m.mu.Lock()
	m.breakers[b.Name()] = b
	m.ensureDependency(b.Name())
	m.mu.Unlock()
}

// RecordTransition matches resilience.CircuitBreakerConfig.OnStateChange.
func (m *Metrics) RecordTransition(name string, from, to resilience.State) {
	if m == nil {
		return
	}
	m.mu.Lock()
	stats := m.ensureDependency(name)
	stats.transitions++
	if to == resilience.StateOpen {
		stats.opens++
	}
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	now := time.Now()
	snap := Snapshot{
		UptimeSec:       int64(now.Sub(m.start).Seconds()),
		Routes:          make(map[string]RouteSnapshot),
		Dependencies:    make(map[string]DependencySnapshot),
		RateLimitWaits:  m.rateLimitWaits,
		RateLimitWaitMs: int64(m.rateLimitWait / time.Millisecond),
		Replays:         m.replays,
	}

	for route, stats := range m.routes {
		avg := 0.0
		if stats.count > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.count)
		}
		snap.Routes[route] = RouteSnapshot{
			Count:         stats.count,
			Errors:        stats.errors,
			InFlight:      stats.inFlight,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(stats.maxLatency.Milliseconds()),
			LastLatencyMs: float64(stats.lastLatency.Milliseconds()),
		}
		snap.TotalRequests += stats.count
		snap.TotalErrors += stats.errors
		snap.InFlight += stats.inFlight
	}

	for name, stats := range m.dependencies {
		snap.Dependencies[name] = DependencySnapshot{
			State:       resilience.StateClosed,
			Opens:       stats.opens,
			Transitions: stats.transitions,
		}
	}
	breakers := make([]*resilience.CircuitBreaker, 0, len(m.breakers))
	for _, b := range m.breakers {
		breakers = append(breakers, b)
	}

	if !m.lifecycle.shutdownAt.IsZero() {
		snap.Lifecycle = &LifecycleSnapshot{
			ShutdownAt:         m.lifecycle.shutdownAt,
			InFlightAtShutdown: m.lifecycle.inflight,
		}
	}
	m.mu.Unlock()

	// Breakers call RecordTransition under their own lock, so they are
	// queried only after mu is released.
	for _, b := range breakers {
		bs := b.Snapshot()
		dep := snap.Dependencies[bs.Name]
		dep.State = bs.State
		dep.ConsecutiveFailures = bs.ConsecutiveFailures
		snap.Dependencies[bs.Name] = dep
	}

	return snap
}

func (m *Metrics) ensureRoute(route string) *routeStats {
	stats, ok := m.routes[route]
	if !ok {
		stats = &routeStats{}
		m.routes[route] = stats
	}
	return stats
}

func (m *Metrics) ensureDependency(name string) *dependencyStats {
	stats, ok := m.dependencies[name]
	if !ok {
		stats = &dependencyStats{}
		m.dependencies[name] = stats
	}
	return stats
}

func (m *Metrics) finish(route string, dur time.Duration, failed bool) {
	m.mu.Lock()
	stats := m.ensureRoute(route)
	stats.inFlight--
	stats.count++
	if failed {
		stats.errors++
	}
	stats.totalLatency += dur
	if dur > stats.maxLatency {
		stats.maxLatency = dur
	}
	stats.lastLatency = dur
	m.mu.Unlock()
}

func (m *Metrics) MarkShutdown(inflight int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lifecycle.shutdownAt = time.Now()
	m.lifecycle.inflight = inflight
	m.mu.Unlock()
}
