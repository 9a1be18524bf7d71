package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/parsascontentcorner/shelfsync/internal/metrics"
)

// Server serves grpc.health.v1.Health and reflection
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer listens on port ("0" picks a free one) and registers the
// reporter's health service
func NewServer(health *HealthReporter, port string, logger *zap.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", ":"+port) //nolint:noctx // listener lives as long as the server
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %s: %w", port, err)
	}

	srv := grpc.NewServer(
		grpc.UnaryInterceptor(unaryInterceptor(logger)),
		grpc.StreamInterceptor(streamInterceptor(logger)),
	)
	healthpb.RegisterHealthServer(srv, health.Server())
	reflection.Register(srv)

	logger.Info("gRPC server configured", zap.String("address", lis.Addr().String()))

	return &Server{
		grpcServer: srv,
		listener:   lis,
		logger:     logger,
	}, nil
}

// Addr returns the bound listener address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until the server stops
func (s *Server) Serve() error {
	s.logger.Info("starting gRPC server", zap.String("address", s.Addr()))

	if err := s.grpcServer.Serve(s.listener); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// GracefulStop waits for pending RPCs. Open Watch streams end when the
// health reporter shuts down.
func (s *Server) GracefulStop() {
	s.logger.Info("gracefully stopping gRPC server")
	s.grpcServer.GracefulStop()
}

// Stop closes every connection immediately
func (s *Server) Stop() {
	s.logger.Info("stopping gRPC server")
	s.grpcServer.Stop()
}

func unaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(logger, info.FullMethod, start, err)
		return resp, err
	}
}

func streamInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observe(logger, info.FullMethod, start, err)
		return err
	}
}

func observe(logger *zap.Logger, method string, start time.Time, err error) {
	elapsed := time.Since(start)
	code := status.Code(err)
	metrics.RecordAPIRequest("GRPC", method, code.String(), elapsed)

	if err != nil {
		logger.Warn("gRPC request failed",
			zap.String("method", method),
			zap.String("code", code.String()),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return
	}
	logger.Debug("gRPC request completed",
		zap.String("method", method),
		zap.Duration("duration", elapsed),
	)
}
