package main

import (
	"context"

	"trading-console/src/grpc_control"
	"trading-console/src/interfaces"
	"trading-console/src/logger"

	"golang.org/x/sync/errgroup"
)

// -----------------------------------------------------------------------------

// startServers runs the console and gRPC servers in g and stops both once ctx is done
func startServers(
	ctx context.Context,
	g *errgroup.Group,
	srv interfaces.IDataExchanger,
	grpcServer *grpc_control.GRPCServer,
	appLogger *logger.Logger,
) {

	// 1. Console server (REST + WebSocket)
	g.Go(func() error {
		if err := srv.Start(); err != nil {
			appLogger.Error("Console server failed: %v", err)
			return err
		}
		return nil
	})

	// 2. gRPC control server
	g.Go(func() error {
		if err := grpcServer.Start(); err != nil {
			appLogger.Error("gRPC server failed: %v", err)
			return err
		}
		return nil
	})

	// 3. Shutdown on cancellation
	g.Go(func() error {
		<-ctx.Done()
		appLogger.Info("Stopping servers...")
		grpcServer.Stop()
		return srv.Stop()
	})
}
