package main

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"

	"ordergate/cmd/server/config"
	"ordergate/internal/events"
	"ordergate/internal/idempotency"
	"ordergate/internal/observability"
	"ordergate/internal/orders"
	"ordergate/internal/resilience"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildDependencies_StubsWhenDisabled(t *testing.T) {
	cfg := config.DownstreamConfig{
		UseHTTPAdapters:  false,
		InventoryBaseURL: "http://inventory",
		PaymentsBaseURL:  "http://payments",
	}

	deps := buildDependencies(cfg, resilience.DefaultConfig(), observability.NewMetrics(), discardLogger())
	if deps.inventory != nil || deps.payments != nil {
		t.Fatalf("expected stub fallbacks, got %+v", deps)
	}
	if len(deps.breakers) != 2 || deps.breakers[inventoryService] != nil || deps.breakers[paymentsService] != nil {
		t.Fatalf("expected nil breakers for stubs, got %+v", deps.breakers)
	}
}

func TestBuildDependencies_HTTPAdapters(t *testing.T) {
	cfg := config.DownstreamConfig{
		UseHTTPAdapters:  true,
		InventoryBaseURL: "http://inventory",
	}
	metrics := observability.NewMetrics()

	deps := buildDependencies(cfg, resilience.DefaultConfig(), metrics, discardLogger())
	if deps.inventory == nil {
		t.Fatalf("expected inventory http adapter")
	}
	if deps.payments != nil {
		t.Fatalf("expected payments stub without base url")
	}
	breaker := deps.breakers[inventoryService]
	if breaker == nil || breaker.Name() != inventoryService {
		t.Fatalf("expected inventory breaker, got %+v", deps.breakers)
	}
	if _, ok := metrics.Snapshot().Dependencies[inventoryService]; !ok {
		t.Fatalf("expected breaker tracked in metrics")
	}

	for i := 0; i < resilience.DefaultConfig().BreakerMaxFailures; i++ {
		ticket, _ := breaker.BeforeCall()
		breaker.OnFailure(ticket)
		breaker.OnFinish(ticket)
	}
	dep := metrics.Snapshot().Dependencies[inventoryService]
	if dep.State != resilience.StateOpen || dep.Opens != 1 {
		t.Fatalf("expected recorded open transition, got %+v", dep)
	}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	frames [][]byte
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, msg []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, msg)
	return nil
}

func TestBuildPublisher_LiveOnlyWithoutBrokers(t *testing.T) {
	live := &recordingBroadcaster{}
	publisher, closePublisher := buildPublisher(config.KafkaConfig{Topic: "order.events"}, live, discardLogger())
	defer closePublisher()

	fanout, ok := publisher.(events.Fanout)
	if !ok || len(fanout) != 1 {
		t.Fatalf("expected single live publisher, got %#v", publisher)
	}
	if err := publisher.Publish(context.Background(), events.OrderEvent{Type: events.TypeOrderConfirmed, OrderID: "o-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(live.frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(live.frames))
	}
}

func TestBuildPublisher_AddsKafka(t *testing.T) {
	publisher, closePublisher := buildPublisher(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}, Topic: "order.events"}, &recordingBroadcaster{}, discardLogger())
	defer closePublisher()

	fanout, ok := publisher.(events.Fanout)
	if !ok || len(fanout) != 2 {
		t.Fatalf("expected live and kafka publishers, got %#v", publisher)
	}
	if _, ok := fanout[1].(*events.KafkaPublisher); !ok {
		t.Fatalf("expected kafka publisher, got %T", fanout[1])
	}
}

func TestBuildStorage_MemoryByDefault(t *testing.T) {
	s, err := buildStorage(context.Background(), config.StorageConfig{IdempotencyBackend: config.BackendMemory}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.cleanup()

	if _, ok := s.repository.(*orders.MemoryRepository); !ok {
		t.Fatalf("expected memory repository, got %T", s.repository)
	}
	if _, ok := s.idempotency.(*idempotency.MemoryStore); !ok {
		t.Fatalf("expected memory idempotency store, got %T", s.idempotency)
	}
}

func TestBuildStorage_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	prev := openDB
	openDB = func(driver, dsn string) (*sql.DB, error) {
		if driver != "pgx" || dsn != "postgres://orders" {
			t.Fatalf("unexpected open %s %s", driver, dsn)
		}
		return db, nil
	}
	t.Cleanup(func() { openDB = prev })

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS order_items").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS idempotency_keys").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	s, err := buildStorage(context.Background(), config.StorageConfig{
		DatabaseURL:        "postgres://orders",
		IdempotencyBackend: config.BackendPostgres,
	}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.idempotency.(*idempotency.PostgresStore); !ok {
		t.Fatalf("expected postgres idempotency store, got %T", s.idempotency)
	}
	s.cleanup()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBuildStorage_PingFailureClosesDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	prev := openDB
	openDB = func(driver, dsn string) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { openDB = prev })

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	mock.ExpectClose()

	if _, err := buildStorage(context.Background(), config.StorageConfig{DatabaseURL: "postgres://orders"}, discardLogger()); err == nil {
		t.Fatalf("expected ping failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBuildStorage_Redis(t *testing.T) {
	srv := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+srv.Addr()+"/0")
	t.Setenv("REDIS_HEALTHCHECK_TIMEOUT", "1s")

	s, err := buildStorage(context.Background(), config.StorageConfig{
		IdempotencyBackend: config.BackendRedis,
		IdempotencyTTL:     time.Hour,
	}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.cleanup()

	if _, _, err := s.idempotency.GetOrCreate(context.Background(), "key-1", map[string]int{"n": 1}); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !srv.Exists("idempotency:key-1") {
		t.Fatalf("expected record in redis, keys=%v", srv.Keys())
	}
}

func TestBuildStorage_RedisRequiresURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	if _, err := buildStorage(context.Background(), config.StorageConfig{IdempotencyBackend: config.BackendRedis}, discardLogger()); err == nil {
		t.Fatalf("expected error when REDIS_URL is empty")
	}
}

func TestNewRedisClient_WithOTel(t *testing.T) {
	srv := miniredis.RunT(t)
	poolSize := 3

	client, err := newRedisClient(context.Background(), config.RedisConfig{
		URL:                "redis://" + srv.Addr() + "/0",
		PoolSize:           &poolSize,
		HealthcheckTimeout: time.Second,
		EnableOTel:         true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if client.Options().PoolSize != 3 {
		t.Fatalf("expected pool size override, got %d", client.Options().PoolSize)
	}
}

func TestNewRedisClient_PingFails(t *testing.T) {
	dial := 20 * time.Millisecond
	_, err := newRedisClient(context.Background(), config.RedisConfig{
		URL:                "redis://127.0.0.1:1/0",
		DialTimeout:        &dial,
		HealthcheckTimeout: 30 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected ping failure")
	}
}
