package grpc_control

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"trading-console/src/logger"
	"trading-console/src/models"
	"trading-console/src/stream"
	"trading-console/src/timeseries"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakeStream struct {
	mu    sync.Mutex
	state stream.State
}

func (f *fakeStream) Connect() {
	f.mu.Lock()
	f.state = stream.StateConnected
	f.mu.Unlock()
}

func (f *fakeStream) Disconnect() {
	f.mu.Lock()
	f.state = stream.StateDisconnected
	f.mu.Unlock()
}

func (f *fakeStream) Status() stream.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return stream.Status{State: f.state, Source: "sse", ReconnectsScheduled: 3, LastError: "stream closed by server"}
}

func startTestServer(t *testing.T, sc StreamControl, store *timeseries.Store) (*grpc.ClientConn, *HealthReporter) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	hr := NewHealthReporter(logger.NewNop())
	g := NewGRPCServer(&models.MConfig{}, logger.NewNop(), NewControlService(sc, store, logger.NewNop()), hr)

	go g.Serve(lis)
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, hr
}

func TestControlService(t *testing.T) {
	store := timeseries.NewStore(logger.NewNop())
	store.Merge(timeseries.Key{Instrument: "TQBR:SBER", Timeframe: "1m"}, models.MCandle{Time: 60, Close: 270.5})

	fs := &fakeStream{state: stream.StateReconnecting}
	conn, _ := startTestServer(t, fs, store)
	client := NewControlClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	fields := st.AsMap()
	if fields["state"] != "reconnecting" || fields["source"] != "sse" || fields["reconnects_scheduled"] != float64(3) {
		t.Errorf("GetStatus() = %v", fields)
	}

	st, err = client.Connect(ctx)
	if err != nil || st.AsMap()["state"] != "connected" {
		t.Errorf("Connect() = %v, %v", st, err)
	}
	st, err = client.Disconnect(ctx)
	if err != nil || st.AsMap()["state"] != "disconnected" {
		t.Errorf("Disconnect() = %v, %v", st, err)
	}

	series, err := client.ListSeries(ctx)
	if err != nil {
		t.Fatalf("ListSeries() error = %v", err)
	}
	items, _ := series.AsMap()["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("ListSeries() items = %v", items)
	}
	item := items[0].(map[string]interface{})
	if item["instrument"] != "TQBR:SBER" || item["count"] != float64(1) || item["last_close"] != 270.5 {
		t.Errorf("series item = %v", item)
	}
}

func TestListSeriesWithoutStore(t *testing.T) {
	conn, _ := startTestServer(t, &fakeStream{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := NewControlClient(conn).ListSeries(ctx); err == nil {
		t.Error("ListSeries() without a store succeeded")
	}
}

func TestHealthFollowsStream(t *testing.T) {
	conn, hr := startTestServer(t, &fakeStream{}, nil)
	hc := healthpb.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error = %v", service, err)
		}
		return resp.Status
	}

	if got := check(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("process health = %v", got)
	}

	tests := []struct {
		from, to stream.State
		want     healthpb.HealthCheckResponse_ServingStatus
	}{
		{stream.StateDisconnected, stream.StateReconnecting, healthpb.HealthCheckResponse_NOT_SERVING},
		{stream.StateReconnecting, stream.StateConnected, healthpb.HealthCheckResponse_SERVING},
		{stream.StateConnected, stream.StateDisconnected, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		hr.Watch(tt.from, tt.to)
		if got := check(StreamHealthService); got != tt.want {
			t.Errorf("after %s -> %s health = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
