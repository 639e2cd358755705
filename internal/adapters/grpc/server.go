package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	grpcpkg "google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ordergate/internal/observability"
)

// Limiter blocks until a call may proceed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	Limiter    Limiter
	Metrics    *observability.Metrics
	Logger     *slog.Logger
	Reflection bool
}

// NewServer builds a gRPC server serving the reporter's health service.
func NewServer(reporter *HealthReporter, opts ServerOptions) *grpcpkg.Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	server := grpcpkg.NewServer(
		grpcpkg.UnaryInterceptor(rateLimitUnaryInterceptor(opts.Limiter, opts.Metrics, log)),
		grpcpkg.StreamInterceptor(rateLimitStreamInterceptor(opts.Limiter, opts.Metrics, log)),
	)
	healthpb.RegisterHealthServer(server, reporter.Server())
	if opts.Reflection {
		reflection.Register(server)
	}
	return server
}

type rateLimitedServerStream struct {
	grpcpkg.ServerStream
	limiter Limiter
}

func (s *rateLimitedServerStream) RecvMsg(m any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(s.Context()); err != nil {
			return err
		}
	}
	return s.ServerStream.RecvMsg(m)
}

func rateLimitUnaryInterceptor(limiter Limiter, metrics *observability.Metrics, log *slog.Logger) grpcpkg.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpcpkg.UnaryServerInfo, handler grpcpkg.UnaryHandler) (any, error) {
		span := &observability.CallSpan{}
		start := time.Now()
		if shouldTrackMethod(info.FullMethod) {
			span = metrics.Start(info.FullMethod)
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				span.End(true)
				return nil, err
			}
		}
		resp, err := handler(ctx, req)
		span.End(err != nil)
		if err != nil && shouldTrackMethod(info.FullMethod) {
			log.WarnContext(ctx, "grpc unary call failed", "method", info.FullMethod, "duration", time.Since(start), "err", err)
		}
		return resp, err
	}
}

func rateLimitStreamInterceptor(limiter Limiter, metrics *observability.Metrics, log *slog.Logger) grpcpkg.StreamServerInterceptor {
	return func(srv any, stream grpcpkg.ServerStream, info *grpcpkg.StreamServerInfo, handler grpcpkg.StreamHandler) error {
		span := &observability.CallSpan{}
		start := time.Now()
		if shouldTrackMethod(info.FullMethod) {
			span = metrics.Start(info.FullMethod)
		}
		if limiter != nil {
			stream = &rateLimitedServerStream{ServerStream: stream, limiter: limiter}
		}
		err := handler(srv, stream)
		span.End(err != nil)
		if err != nil && shouldTrackMethod(info.FullMethod) {
			log.WarnContext(stream.Context(), "grpc stream failed", "method", info.FullMethod, "duration", time.Since(start), "err", err)
		}
		return err
	}
}

func shouldTrackMethod(method string) bool {
	return method != "" && !strings.HasPrefix(method, "/grpc.reflection.")
}
