// Package grpc serves the standard grpc.health.v1 service so orchestrators
// can check the auth server and its storage.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/HijjazD/CryptoVote/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the server-wide
// "" entry.
const ServiceName = "cryptovote.auth"

const defaultCheckInterval = 15 * time.Second

// Pinger is a dependency whose reachability decides the serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer serves grpc.health.v1 and flips the status of ServiceName
// with the result of a periodic storage ping.
type HealthServer struct {
	address  string
	logger   logging.Logger
	health   *health.Server
	storage  Pinger
	interval time.Duration
}

// NewHealthServer builds a health server. A non-positive interval uses the
// default check interval and a nil storage always reports SERVING.
func NewHealthServer(address string, storage Pinger, interval time.Duration, l logging.Logger) *HealthServer {
	if l == nil {
		l = logging.Nop{}
	}
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &HealthServer{
		address:  address,
		logger:   l.With("module", "grpc_health"),
		health:   health.NewServer(),
		storage:  storage,
		interval: interval,
	}
}

// CheckStorage pings storage once and publishes the result.
func (s *HealthServer) CheckStorage(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.storage != nil {
		if err := s.storage.Ping(ctx); err != nil {
			s.logger.Warn(ctx, "storage check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Run listens on the configured address and serves until ctx is done.
func (s *HealthServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "Starting gRPC health server", "address", s.address)
	return s.Serve(ctx, listen)
}

// Serve runs on lis until ctx is cancelled.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)

	s.CheckStorage(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info(context.Background(), "Stopping gRPC health server...")
				s.health.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
				s.CheckStorage(ctx)
			}
		}
	}()

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
