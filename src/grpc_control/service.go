package grpc_control

import (
	"context"

	"trading-console/src/logger"
	"trading-console/src/stream"
	"trading-console/src/timeseries"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// StreamControl is the part of the stream client the control service drives
type StreamControl interface {
	Connect()
	Disconnect()
	Status() stream.Status
}

// ControlService implements ControlServer on top of the stream client and the candle store
type ControlService struct {
	Stream StreamControl
	Store  *timeseries.Store
	Logger *logger.Logger
}

// NewControlService creates a new instance of ControlService
func NewControlService(sc StreamControl, store *timeseries.Store, log *logger.Logger) *ControlService {
	return &ControlService{Stream: sc, Store: store, Logger: log}
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	return statusStruct(s.Stream.Status())
}

// -----------------------------------------------------------------------------

func (s *ControlService) Connect(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	s.Logger.Info("gRPC: Connect requested")
	s.Stream.Connect()
	return statusStruct(s.Stream.Status())
}

// -----------------------------------------------------------------------------

func (s *ControlService) Disconnect(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	s.Logger.Info("gRPC: Disconnect requested")
	s.Stream.Disconnect()
	return statusStruct(s.Stream.Status())
}

// -----------------------------------------------------------------------------

// ListSeries reports every series held in memory with its size and newest bar
func (s *ControlService) ListSeries(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	if s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "no candle store attached")
	}

	keys := s.Store.Keys()
	items := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		item := map[string]interface{}{
			"instrument": k.Instrument,
			"timeframe":  k.Timeframe,
			"count":      s.Store.Len(k),
		}
		if last, ok := s.Store.Latest(k); ok {
			item["last_time"] = last.Time
			item["last_close"] = last.Close
		}
		items = append(items, item)
	}

	out, err := structpb.NewStruct(map[string]interface{}{"items": items})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding series: %v", err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func statusStruct(st stream.Status) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]interface{}{
		"state":                st.State.String(),
		"demo":                 st.Demo,
		"source":               st.Source,
		"reconnect_pending":    st.ReconnectPending,
		"reconnects_scheduled": int64(st.ReconnectsScheduled),
		"last_error":           st.LastError,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding status: %v", err)
	}
	return out, nil
}
