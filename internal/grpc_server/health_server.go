package grpc_server

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName имя сервиса релея в grpc.health.v1
const ServiceName = "detection_relay.Relay"

// HealthServer gRPC сервер со стандартным health сервисом и reflection
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewHealthServer создает сервер; пока релей не запущен, статус NOT_SERVING
func NewHealthServer(logger *zap.Logger, opts ...grpc.ServerOption) *HealthServer {
	server := grpc.NewServer(opts...)
	hs := health.NewServer()

	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{
		server: server,
		health: hs,
		logger: logger,
	}
}

// SetServing выставляет статус релея и общий статус сервера
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)

	s.logger.Info("gRPC health status changed",
		zap.String("service", ServiceName),
		zap.String("status", status.String()))
}

// Run слушает порт и обслуживает запросы до Stop
func (s *HealthServer) Run(port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", port, err)
	}
	return s.Serve(lis)
}

// Serve обслуживает запросы на готовом listener
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", zap.String("address", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC server: %w", err)
	}
	return nil
}

// Stop переводит статусы в NOT_SERVING и останавливает сервер
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
