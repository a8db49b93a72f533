package grpc_control

import (
	"trading-console/src/logger"
	"trading-console/src/stream"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StreamHealthService is the health service name that follows the event stream
const StreamHealthService = "tradingconsole.Stream"

// HealthReporter mirrors the stream connection state into the standard gRPC health service.
// The process itself ("") always serves; the stream service serves only while connected.
type HealthReporter struct {
	Server *health.Server
	Logger *logger.Logger
}

func NewHealthReporter(log *logger.Logger) *HealthReporter {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(StreamHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{Server: hs, Logger: log}
}

// Watch is a stream.Watcher
func (h *HealthReporter) Watch(from, to stream.State) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if to == stream.StateConnected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.Server.SetServingStatus(StreamHealthService, st)
	h.Logger.Debug("Stream health %s -> %s", from, st)
}

// Shutdown marks every service as not serving
func (h *HealthReporter) Shutdown() {
	h.Server.Shutdown()
}
