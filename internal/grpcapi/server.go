// Package grpcapi exposes the standard grpc.health.v1 service so process
// supervisors can check the daemon without speaking the HTTP API.
package grpcapi

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health entry that follows the check result.  The empty
// name reports overall process health and stays SERVING until shutdown.
const ServiceName = "tagtracer.v1.Tracer"

const defaultCheckInterval = 10 * time.Second

type Dependencies struct {
	Logger *log.Logger
	Addr   string

	// Check reports whether the tracer's backing store is usable.  Nil means
	// always healthy.
	Check         func(ctx context.Context) error
	CheckInterval time.Duration
}

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *log.Logger
	addr       string
	storeCheck func(ctx context.Context) error
	interval   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewServer(d Dependencies) *Server {
	interval := d.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		logger:     logger,
		addr:       d.Addr,
		storeCheck: d.Check,
		interval:   interval,
		stop:       make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.refresh()
	return s
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve serves on lis and runs the check loop.
func (s *Server) Serve(lis net.Listener) error {
	s.wg.Add(1)
	go s.checkLoop()
	return s.grpcServer.Serve(lis)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) checkLoop() {
	defer s.wg.Done()

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.refresh()
		}
	}
}

func (s *Server) refresh() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.storeCheck != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		err := s.storeCheck(ctx)
		cancel()
		if err != nil {
			s.logger.Printf("health check failed: %v", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, status)
}
