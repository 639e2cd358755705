package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"ordergate/cmd/server/config"
	ordersdb "ordergate/internal/db/orders"
	"ordergate/internal/idempotency"
	"ordergate/internal/orders"
)

const dbPingTimeout = 5 * time.Second

var openDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

type storage struct {
	repository  orders.Repository
	idempotency idempotency.Store
	cleanup     func()
}

// buildStorage opens the order repository and the idempotency store. Without
// DATABASE_URL orders are kept in memory.
func buildStorage(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (storage, error) {
	var (
		db      *sql.DB
		closers []func()
		repo    orders.Repository
		idemp   idempotency.Store
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		var err error
		db, err = openDB("pgx", cfg.DatabaseURL)
		if err != nil {
			return storage{}, fmt.Errorf("open database: %w", err)
		}
		closers = append(closers, func() {
			if err := db.Close(); err != nil {
				log.Warn("close database", "err", err)
			}
		})

		pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			cleanup()
			return storage{}, fmt.Errorf("ping database: %w", err)
		}

		store, err := ordersdb.NewOrderStoreWithSchema(ctx, db)
		if err != nil {
			cleanup()
			return storage{}, fmt.Errorf("init order schema: %w", err)
		}
		repo = store
	} else {
		log.Info("DATABASE_URL not set, orders are kept in memory")
		repo = orders.NewMemoryRepository()
	}

	switch cfg.IdempotencyBackend {
	case config.BackendPostgres:
		store, err := idempotency.NewPostgresStoreWithSchema(ctx, db)
		if err != nil {
			cleanup()
			return storage{}, fmt.Errorf("init idempotency schema: %w", err)
		}
		idemp = store
	case config.BackendRedis:
		redisCfg, err := config.LoadRedis()
		if err != nil {
			cleanup()
			return storage{}, err
		}
		client, err := newRedisClient(ctx, redisCfg)
		if err != nil {
			cleanup()
			return storage{}, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				log.Warn("close redis", "err", err)
			}
		})
		idemp = idempotency.NewRedisStore(client, cfg.IdempotencyTTL)
	default:
		idemp = idempotency.NewMemoryStore()
	}
	log.Info("storage ready", "database", cfg.DatabaseURL != "", "idempotency_backend", cfg.IdempotencyBackend)

	return storage{repository: repo, idempotency: idemp, cleanup: cleanup}, nil
}
