// tail connects to the event stream (or the synthetic feed with -demo) and prints every
// envelope. On exit it prints event counts and a summary of the series it saw.
// With -grpc it instead asks a running console for its stream status and series.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-console/src/analysis"
	"trading-console/src/config"
	"trading-console/src/console"
	datasource "trading-console/src/data_source"
	"trading-console/src/events"
	"trading-console/src/grpc_control"
	"trading-console/src/logger"
	"trading-console/src/models"
	"trading-console/src/network"
	"trading-console/src/stream"
	"trading-console/src/timeseries"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	configPath := flag.String("config", "", "optional config file")
	demo := flag.Bool("demo", false, "use the synthetic feed regardless of config")
	color := flag.Bool("color", true, "colour output")
	duration := flag.Duration("for", 0, "stop after this long (0 runs until interrupted)")
	grpcAddr := flag.String("grpc", "", "query a running console's control service at host:port and exit")
	flag.Parse()

	godotenv.Load()

	if *grpcAddr != "" {
		if err := queryControl(*grpcAddr); err != nil {
			fmt.Fprintf(os.Stderr, "control query failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// 1. Config
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
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *demo {
		conf.Stream.DemoMode = true
	}
	log := logger.NewLogger(conf, "tail")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	// 2. Stream client with a printer and an in-memory store
	sources := datasource.NewSourceManager(conf.MConfig, log, network.NewAsyncNetworkManager(conf.MConfig, log))
	client := stream.NewClient(conf.MConfig, log, stream.NewBridge(log), sources.Build)

	printer := console.NewPrinter(os.Stdout, *color)
	store := timeseries.NewStore(log)
	client.SubscribeAll(printer.Observe)
	client.Subscribe(events.KindCandleTick, store.HandleEnvelope)
	client.Supervisor().Watch(func(from, to stream.State) {
		fmt.Fprintf(os.Stderr, "-- %s -> %s\n", from, to)
	})

	client.Connect()
	<-ctx.Done()
	client.Disconnect()

	// 3. Summary
	fmt.Println()
	console.RenderCounts(os.Stdout, printer.Counts())

	var stats []models.MSeriesStats
	for _, k := range store.Keys() {
		stats = append(stats, analysis.Summarise(k.Instrument, k.Timeframe, store.Series(k)))
	}
	if len(stats) > 0 {
		console.RenderSeries(os.Stdout, stats)
	}
}

// -----------------------------------------------------------------------------

func queryControl(addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := grpc_control.NewControlClient(conn)

	st, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}
	console.RenderFields(os.Stdout, "Stream", st.AsMap())

	series, err := client.ListSeries(ctx)
	if err != nil {
		return err
	}
	items, _ := series.AsMap()["items"].([]interface{})
	for _, it := range items {
		if m, ok := it.(map[string]interface{}); ok {
			console.RenderFields(os.Stdout, fmt.Sprintf("%v@%v", m["instrument"], m["timeframe"]), m)
		}
	}
	return nil
}
