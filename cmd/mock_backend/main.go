// mock_backend serves the bot backend API from memory: an SSE stream fed by the synthetic
// generator plus the REST endpoints the console reads and mutates.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-console/src/config"
	"trading-console/src/data_source/synthetic"
	"trading-console/src/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Flags
	configPath := flag.String("config", "", "optional config file (instrument, base price, token)")
	addr := flag.String("addr", "127.0.0.1:8000", "listen address")
	keepalive := flag.Duration("keepalive", 15*time.Second, "interval of SSE keepalive comments")
	dropAfter := flag.Duration("drop-after", 0, "close each stream after this long (0 keeps it open)")
	flag.Parse()

	// 2. Config & logger
	var (
		conf *config.Config
		err  error
	)
	if *configPath != "" {
		conf, err = config.NewConfig(*configPath)
	} else {
		conf, err = config.Default()
	}
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	conf.Name = "mock-backend"
	appLogger := logger.NewLogger(conf, conf.Name)
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. State fed by the synthetic feed
	backend := newMockBackend(conf.MConfig, appLogger)
	gen := synthetic.NewGenerator(conf.MConfig, logger.NewLogger(conf, "Synthetic"))
	if err := gen.Start(ctx, backend); err != nil {
		appLogger.Critical("Failed to start synthetic feed: %v", err)
		os.Exit(1)
	}
	defer gen.Stop()

	// 4. HTTP
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	backend.routes(engine, *keepalive, *dropAfter)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		// open streams end with the process
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	appLogger.Info("Mock backend for %s listening on http://%s/api", conf.Stream.Instrument, *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLogger.Critical("Server failed: %v", err)
		os.Exit(1)
	}
	appLogger.Info("Mock backend stopped")
}
