package main

import (
	"log/slog"

	"ordergate/cmd/server/config"
	"ordergate/internal/httpclient"
	"ordergate/internal/observability"
	"ordergate/internal/orders"
	"ordergate/internal/resilience"
)

const (
	inventoryService = "inventory"
	paymentsService  = "payments"
)

type dependencies struct {
	inventory orders.InventoryPort
	payments  orders.PaymentsPort
	// breakers has an entry per dependency; nil marks an in-process stub.
	breakers map[string]*resilience.CircuitBreaker
}

// buildDependencies wires an HTTP adapter for every dependency with a base URL
// when adapters are enabled. The rest stay nil and fall back to stubs.
func buildDependencies(cfg config.DownstreamConfig, res resilience.Config, metrics *observability.Metrics, log *slog.Logger) dependencies {
	deps := dependencies{breakers: map[string]*resilience.CircuitBreaker{
		inventoryService: nil,
		paymentsService:  nil,
	}}

	onChange := func(name string, from, to resilience.State) {
		metrics.RecordTransition(name, from, to)
		log.Warn("circuit breaker state changed", "dependency", name, "from", from, "to", to)
	}
	newClient := func(name, baseURL string) *httpclient.Client {
		breaker := res.Breaker(name, onChange)
		metrics.TrackBreaker(breaker)
		deps.breakers[name] = breaker
		return httpclient.New(httpclient.Options{
			Service: name,
			BaseURL: baseURL,
			Breaker: breaker,
			Retry:   res.RetryPolicy(),
			Timeout: res.Timeout,
			Logger:  log,
		})
	}

	if !cfg.UseHTTPAdapters {
		return deps
	}
	if cfg.InventoryBaseURL != "" {
		deps.inventory = httpclient.NewInventoryClient(newClient(inventoryService, cfg.InventoryBaseURL))
	}
	if cfg.PaymentsBaseURL != "" {
		deps.payments = httpclient.NewPaymentsClient(newClient(paymentsService, cfg.PaymentsBaseURL))
	}
	return deps
}
