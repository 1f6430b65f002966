package observability

import (
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

// HealthServer exposes planner liveness over the standard gRPC health
// protocol. The serving status tracks the latest coverage classification.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer builds a gRPC server carrying only the health service,
// instrumented with OTel and, when a collector is supplied, request metrics.
func NewHealthServer(collector *PlannerCollector) *HealthServer {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	}
	if collector != nil {
		opts = append(opts, grpc.ChainUnaryInterceptor(collector.UnaryServerInterceptor()))
	}
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{server: srv, health: hs}
}

// SetCoverageStatus maps the monitor's coverage classification onto the
// health protocol: a poor picture reports NOT_SERVING, everything else
// SERVING.
func (s *HealthServer) SetCoverageStatus(status model.CoverageStatus) {
	st := healthpb.HealthCheckResponse_SERVING
	if status == model.CoveragePoor {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
}

// Serve blocks serving health checks on lis.
func (s *HealthServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// GracefulStop drains in-flight RPCs and stops the server.
func (s *HealthServer) GracefulStop() {
	s.server.GracefulStop()
}
