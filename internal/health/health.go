// Package health serves the standard gRPC health checking protocol.
package health

import (
	"context"
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported alongside the overall ("") status
const Service = "sandwich"

// Config for the health server
type Config struct {
	Addr string
}

// Server reports NOT_SERVING until the workers run
type Server struct {
	config Config
	grpc   *grpc.Server
	health *health.Server
}

// New creates a new health server
func New(cfg Config) *Server {
	s := &Server{
		config: cfg,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the named service status
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}

// Serve listens on the configured address until ctx is done
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is done
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	log.Info().Str("addr", lis.Addr().String()).Msg("Serving gRPC health")
	return s.grpc.Serve(lis)
}
