package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-console/src/config"
	"trading-console/src/events"
	"trading-console/src/grpc_control"
	"trading-console/src/logger"
	"trading-console/src/server"
	"trading-console/src/stream"
	"trading-console/src/tracing"
	"trading-console/src/utils"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// -----------------------------------------------------------------------------

func main() {

	// 1. Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file (YAML or TOML)")
	envFile := flag.String("env", ".env", "optional dotenv file with UI_DEMO_MODE / API_URL / API_TOKEN")
	flag.Parse()

	// 2. Load environment and config
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Error loading %s: %v\n", *envFile, err)
	}
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger and tracing
	appLogger := logger.NewLogger(conf, conf.Name)
	defer appLogger.Sync()

	if err := tracing.Init(conf.MConfig); err != nil {
		appLogger.Warning("Tracing disabled: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Setup Components
	repo, err := setupStorage(conf.MConfig, appLogger)
	if err != nil {
		os.Exit(1)
	}
	if repo != nil {
		defer repo.Close()
	}
	store := setupStore(conf.MConfig, repo)
	defer store.Close()
	networkManager := setupNetwork(conf.MConfig)
	sources := setupSources(conf.MConfig, networkManager)
	api, cache := setupBackend(conf.MConfig, appLogger, networkManager)

	scheduler := utils.NewMarketScheduler([]string{conf.Stream.Instrument}, appLogger)
	if !scheduler.AnyMarketOpen(time.Now()) {
		appLogger.Info("Market for %s is closed, expect heartbeats only", conf.Stream.Instrument)
	}

	// 5. Bootstrap (storage + history)
	performInitialLoad(ctx, store, repo, api, conf.MConfig, appLogger)

	// 6. Stream client, invalidation and servers
	bridge := stream.NewBridge(logger.NewLogger(conf, "Invalidation"))
	client := stream.NewClient(conf.MConfig, logger.NewLogger(conf, "Stream"), bridge, sources.Build)

	var backend server.BackendActions
	if api != nil {
		backend = api
	}
	srv := server.NewConsoleServer(conf.MConfig, logger.NewLogger(conf, "ConsoleServer"), client, store, cache, backend)

	// the cache sees invalidations first and the UI hears about them through it;
	// without a cache the server is told directly
	if cache != nil {
		bridge.AddTarget(cache)
		cache.OnUpdate(srv.Invalidate)
		defer cache.Close()
	} else {
		bridge.AddTarget(srv)
	}

	client.Subscribe(events.KindCandleTick, store.HandleEnvelope)
	client.SubscribeAll(srv.PublishEnvelope)

	health := grpc_control.NewHealthReporter(logger.NewLogger(conf, "Health"))
	supervisor := client.Supervisor()
	supervisor.Watch(srv.ConnectionChanged)
	supervisor.Watch(health.Watch)
	if cache != nil {
		// poll the backend only while the push channel is down
		supervisor.Watch(func(_, to stream.State) { cache.SetPolling(to != stream.StateConnected) })
		cache.SetPolling(true)
	}

	grpcLogger := logger.NewLogger(conf, "ControlService")
	control := grpc_control.NewControlService(client, store, grpcLogger)
	grpcServer := grpc_control.NewGRPCServer(conf.MConfig, grpcLogger, control, health)

	g, gctx := errgroup.WithContext(ctx)
	startServers(gctx, g, srv, grpcServer, appLogger)

	// 7. Connect
	appLogger.Info("Connecting stream (demo=%v)...", conf.Stream.DemoMode)
	client.Connect()

	// 8. Wait for shutdown
	err = g.Wait()
	client.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if terr := tracing.Shutdown(shutdownCtx); terr != nil {
		appLogger.Warning("Tracing shutdown: %v", terr)
	}

	if err != nil {
		appLogger.Error("Exited with error: %v", err)
		return
	}
	appLogger.Info("Shutdown complete. Sources built: %v", sources.Stats())
}
