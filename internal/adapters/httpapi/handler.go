// Package httpapi is the inbound HTTP surface: order creation with
// idempotency, read endpoints and health.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ordergate/internal/events"
	"ordergate/internal/idempotency"
	"ordergate/internal/observability"
	"ordergate/internal/orders"
	"ordergate/internal/resilience"
)

// Config wires a Handler.
type Config struct {
	Service     *orders.OrderService
	Repository  orders.Repository
	Idempotency idempotency.Store
	Publisher   events.Publisher
	Metrics     *observability.Metrics
	Logger      *slog.Logger

	// Dependencies maps dependency names to their breakers. A nil breaker
	// marks an in-process stand-in.
	Dependencies map[string]*resilience.CircuitBreaker

	IdempotencyWait time.Duration
	IdempotencyPoll time.Duration
	MaxBodyBytes    int64
	Limiter         Limiter
	// Realtime, when set, is served at /ws/orders.
	Realtime http.Handler
}

// Handler serves the orders API.
type Handler struct {
	service      *orders.OrderService
	repo         orders.Repository
	idem         idempotency.Store
	publisher    events.Publisher
	metrics      *observability.Metrics
	log          *slog.Logger
	tracer       trace.Tracer
	validate     *validator.Validate
	dependencies map[string]*resilience.CircuitBreaker
	wait         time.Duration
	poll         time.Duration
	maxBody      int64
	limiter      Limiter
	realtime     http.Handler
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	idem := cfg.Idempotency
	if idem == nil {
		idem = idempotency.NewMemoryStore()
	}
	poll := cfg.IdempotencyPoll
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &Handler{
		service:      cfg.Service,
		repo:         cfg.Repository,
		idem:         idem,
		publisher:    publisher,
		metrics:      cfg.Metrics,
		log:          log.With("component", "http"),
		tracer:       otel.Tracer("ordergate/http"),
		validate:     newValidator(),
		dependencies: cfg.Dependencies,
		wait:         cfg.IdempotencyWait,
		poll:         poll,
		maxBody:      cfg.MaxBodyBytes,
		limiter:      cfg.Limiter,
		realtime:     cfg.Realtime,
		now:          time.Now,
		sleep:        resilience.SleepWithContext,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(bodyLimit(h.maxBody))
	r.Use(rateLimit(h.limiter))

	r.Get("/health", h.route("GET /health", h.health))
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.route("POST /api/orders", h.createOrder))
		r.Get("/", h.route("GET /api/orders", h.listOrders))
		r.Get("/ping", h.route("GET /api/orders/ping", h.ping))
		r.Get("/{id}", h.route("GET /api/orders/{id}", h.getOrder))
	})
	if h.realtime != nil {
		r.Handle("/ws/orders", h.realtime)
	}

	return r
}

func (h *Handler) route(name string, fn http.HandlerFunc) http.HandlerFunc {
	return instrument(name, h.tracer, h.metrics, h.log, fn)
}
