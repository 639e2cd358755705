package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"ordergate/cmd/server/config"
	"ordergate/internal/adapters/grpc"
	"ordergate/internal/adapters/httpapi"
	"ordergate/internal/logging"
	"ordergate/internal/observability"
	"ordergate/internal/orders"
	"ordergate/internal/realtime"
	"ordergate/internal/resilience"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	log := logging.New(config.LogLevel())
	slog.SetDefault(log)

	if err := run(ctx, log); err != nil {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	downstreamCfg, err := config.LoadDownstream()
	if err != nil {
		return err
	}
	storageCfg, err := config.LoadStorage()
	if err != nil {
		return err
	}
	grpcCfg, err := config.LoadGRPC()
	if err != nil {
		return err
	}
	resilienceCfg, err := resilience.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	deps := buildDependencies(downstreamCfg, resilienceCfg, metrics, log)
	service := orders.BuildOrderService(deps.inventory, deps.payments, log)

	store, err := buildStorage(ctx, storageCfg, log)
	if err != nil {
		return err
	}
	defer store.cleanup()

	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	publisher, closePublisher := buildPublisher(config.LoadKafka(), hub, log)
	defer closePublisher()

	var limiter httpapi.Limiter
	if httpCfg.RateLimitInterval > 0 {
		limiter = resilience.NewRateLimiter(httpCfg.RateLimitInterval, httpCfg.RateLimitBurst, metrics.AddRateLimitWait)
	}

	api := httpapi.NewHandler(httpapi.Config{
		Service:         service,
		Repository:      store.repository,
		Idempotency:     store.idempotency,
		Publisher:       publisher,
		Metrics:         metrics,
		Logger:          log,
		Dependencies:    deps.breakers,
		IdempotencyWait: storageCfg.IdempotencyWait,
		IdempotencyPoll: storageCfg.IdempotencyPoll,
		MaxBodyBytes:    httpCfg.MaxBodyBytes,
		Limiter:         limiter,
		Realtime:        hub,
	})
	httpSrv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		log.Info("http server listening", "addr", httpCfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var (
		grpcSrv  interface{ GracefulStop() }
		reporter *grpc.HealthReporter
	)
	if grpcCfg.Addr != "" {
		lis, err := net.Listen("tcp", grpcCfg.Addr)
		if err != nil {
			return err
		}
		var grpcLimiter grpc.Limiter
		if grpcCfg.RateLimitInterval > 0 {
			grpcLimiter = resilience.NewRateLimiter(grpcCfg.RateLimitInterval, grpcCfg.RateLimitBurst, metrics.AddRateLimitWait)
		}
		reporter = grpc.NewHealthReporter(deps.breakers, grpcCfg.HealthInterval, log)
		server := grpc.NewServer(reporter, grpc.ServerOptions{
			Limiter:    grpcLimiter,
			Metrics:    metrics,
			Logger:     log,
			Reflection: grpcCfg.Reflection,
		})
		grpcSrv = server
		go reporter.Run(ctx)
		go func() {
			log.Info("grpc health server listening", "addr", grpcCfg.Addr, "reflection", grpcCfg.Reflection)
			if err := server.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var obsSrv *http.Server
	if obsCfg := config.LoadObservability(); obsCfg.Addr != "" {
		obsSrv = observability.NewServer(obsCfg.Addr, metrics)
		go func() {
			if err := obsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("observability server error", "err", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case runErr = <-errCh:
	}

	metrics.MarkShutdown(metrics.Snapshot().InFlight)
	if reporter != nil {
		reporter.Shutdown()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if obsSrv != nil {
		_ = obsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}
