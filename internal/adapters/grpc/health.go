// Package grpc exposes dependency health over the standard gRPC health
// protocol.
package grpc

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"ordergate/internal/resilience"
)

// OverallService is the health service name for the process as a whole.
const OverallService = ""

// HealthReporter mirrors dependency breaker states into a gRPC health server.
// A dependency reports NOT_SERVING while its breaker is OPEN.
type HealthReporter struct {
	server   *health.Server
	breakers map[string]*resilience.CircuitBreaker
	interval time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	last map[string]healthpb.HealthCheckResponse_ServingStatus
}

// NewHealthReporter constructs a reporter and publishes the initial statuses.
// Nil breakers stand for in-process stubs and always serve.
func NewHealthReporter(breakers map[string]*resilience.CircuitBreaker, interval time.Duration, log *slog.Logger) *HealthReporter {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	r := &HealthReporter{
		server:   health.NewServer(),
		breakers: breakers,
		interval: interval,
		log:      log.With("component", "grpc-health"),
		last:     make(map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
	r.Sync()
	return r
}

// Server returns the health server to register.
func (r *HealthReporter) Server() *health.Server {
	return r.server
}

// Services lists the dependency service names, sorted.
func (r *HealthReporter) Services() []string {
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sync publishes the current status of every dependency.
func (r *HealthReporter) Sync() {
	for _, name := range r.Services() {
		r.set(name, servingStatus(r.breakers[name]))
	}
	r.set(OverallService, healthpb.HealthCheckResponse_SERVING)
}

// Run syncs on every interval until ctx ends.
func (r *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sync()
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (r *HealthReporter) Shutdown() {
	r.server.Shutdown()
}

func (r *HealthReporter) set(name string, status healthpb.HealthCheckResponse_ServingStatus) {
	r.mu.Lock()
	prev, seen := r.last[name]
	r.last[name] = status
	r.mu.Unlock()

	if seen && prev == status {
		return
	}
	r.server.SetServingStatus(name, status)
	if seen && name != OverallService {
		r.log.Info("dependency health changed", "service", name, "from", prev.String(), "to", status.String())
	}
}

func servingStatus(b *resilience.CircuitBreaker) healthpb.HealthCheckResponse_ServingStatus {
	if b.State() == resilience.StateOpen {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
