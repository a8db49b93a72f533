package grpc_control

import (
	"context"
	"fmt"
	"net"
	"time"

	"trading-console/src/logger"
	"trading-console/src/models"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer hosts the control and health services
type GRPCServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	Health *HealthReporter
	server *grpc.Server
}

func NewGRPCServer(cfg *models.MConfig, log *logger.Logger, control ControlServer, hr *HealthReporter) *GRPCServer {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	RegisterControlServer(srv, control)
	healthpb.RegisterHealthServer(srv, hr.Server)
	reflection.Register(srv)

	return &GRPCServer{Config: cfg, Logger: log, Health: hr, server: srv}
}

// -----------------------------------------------------------------------------

// Start listens on grpc_host:grpc_port and serves until Stop
func (g *GRPCServer) Start() error {
	addr := fmt.Sprintf("%s:%d", g.Config.GrpcHost, g.Config.GrpcPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on %s: %w", addr, err)
	}
	g.Logger.Info("Starting gRPC control server on %s", lis.Addr())
	return g.Serve(lis)
}

// Serve serves on an existing listener
func (g *GRPCServer) Serve(lis net.Listener) error {
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop flips health to not serving and drains in-flight calls
func (g *GRPCServer) Stop() {
	g.Health.Shutdown()
	g.server.GracefulStop()
}

// -----------------------------------------------------------------------------

func loggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warning("gRPC %s failed after %v: %v", info.FullMethod, time.Since(start), err)
		} else {
			log.Debug("gRPC %s took %v", info.FullMethod, time.Since(start))
		}
		return resp, err
	}
}
