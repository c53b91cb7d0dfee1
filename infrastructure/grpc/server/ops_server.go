package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"chat-sync/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health entry of the websocket hub.
const ServiceName = "chatsync.Hub"

// OpsServer exposes the standard gRPC health service so orchestrators can probe the node
// and drain it before shutdown.
type OpsServer struct {
	server *grpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewOpsServer(log *slog.Logger) *OpsServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		UnaryRecoveryInterceptor(log),
		UnaryLoggingInterceptor(log),
	))
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)
	h.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return &OpsServer{server: s, health: h, log: log}
}

func (o *OpsServer) Serve(listener net.Listener) error {
	o.log.Info("Starting gRPC ops server", "address", listener.Addr().String(), "at", time.Now().UTC())
	if err := o.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// Drain reports NOT_SERVING while the node still accepts requests, so load balancers stop routing to it.
func (o *OpsServer) Drain() {
	o.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	o.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

func (o *OpsServer) Stop() {
	o.health.Shutdown()
	o.server.GracefulStop()
}

func UnaryLoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("gRPC call", "method", info.FullMethod, "code", status.Code(err), "duration", time.Since(start))
		return resp, err
	}
}

// UnaryRecoveryInterceptor turns a handler panic into an Internal status.
func UnaryRecoveryInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Recovered from gRPC handler panic", "method", info.FullMethod, "panic", r)
				err = errors.MapToGRPCError(fmt.Errorf("%w: %v", errors.ErrHandlerPanic, r))
			}
		}()
		return handler(ctx, req)
	}
}
