package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"civreg.org/internal/obs"
)

// ServiceName is the name health checks may address explicitly.
const ServiceName = "civreg.v1.Registry"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// HealthServer implements grpc.health.v1.Health on top of the readiness probe.
type HealthServer struct {
	healthpb.UnimplementedHealthServer

	readiness readinessChecker
}

// NewHealthServer creates the health service wrapper.
func NewHealthServer(r readinessChecker) *HealthServer {
	return &HealthServer{readiness: r}
}

// Check reports SERVING when backing services answer. An empty service name
// means the server as a whole.
func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if s.readiness != nil {
		if err := s.readiness.Check(ctx); err != nil {
			obs.Logger().WithError(err).Warn("grpc_health_not_serving")
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// NewServer returns a gRPC server with the health service registered.
func NewServer(r readinessChecker, opts ...grpc.ServerOption) *grpc.Server {
	server := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(server, NewHealthServer(r))
	return server
}
