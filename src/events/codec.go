package events

import (
	"fmt"
	"math"

	"trading-console/src/helpers"
	"trading-console/src/models"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultTimeframe is assumed for candle ticks that omit tf
const DefaultTimeframe = "1m"

// -----------------------------------------------------------------------------
// Wire shapes
// -----------------------------------------------------------------------------

// wireEnvelope is the {type, ts, data} body shared by the SSE stream and the event bus
type wireEnvelope struct {
	Type string              `json:"type"`
	Ts   int64               `json:"ts"`
	Data jsoniter.RawMessage `json:"data"`
}

type wireCandle struct {
	Time   *float64 `json:"time"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume float64  `json:"volume"`
}

type wireCandleTick struct {
	InstrumentID string      `json:"instrument_id"`
	Timeframe    string      `json:"tf"`
	Candle       *wireCandle `json:"candle"`
}

// -----------------------------------------------------------------------------
// Decode
// -----------------------------------------------------------------------------

// Decode turns one stream message into an Envelope. name is the SSE event name and may be
// empty or "message", in which case the body's type field decides. Any failure is a
// *helpers.DecodeError and the message must be dropped.
func Decode(name string, body []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return Envelope{}, helpers.NewDecodeError("malformed event body", err)
	}

	kindName := name
	if kindName == "" || kindName == "message" {
		kindName = wire.Type
	}
	kind, err := ParseKind(kindName)
	if err != nil {
		return Envelope{}, helpers.NewDecodeError("rejected event", err)
	}

	payload, err := decodePayload(kind, wire.Data)
	if err != nil {
		return Envelope{}, helpers.NewDecodeError(fmt.Sprintf("malformed %s payload", kind), err)
	}

	return Envelope{Kind: kind, Timestamp: wire.Ts, Payload: payload}, nil
}

// -----------------------------------------------------------------------------

func decodePayload(kind Kind, data jsoniter.RawMessage) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("missing data")
	}

	switch kind {
	case KindCandleTick:
		var w wireCandleTick
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		if w.Candle == nil || w.Candle.Time == nil {
			return nil, fmt.Errorf("candle tick without candle time")
		}
		if w.InstrumentID == "" {
			return nil, fmt.Errorf("candle tick without instrument_id")
		}
		tf := w.Timeframe
		if tf == "" {
			tf = DefaultTimeframe
		}
		return CandleTick{
			InstrumentID: w.InstrumentID,
			Timeframe:    tf,
			Candle: models.MCandle{
				Time:   int64(math.Floor(*w.Candle.Time)),
				Open:   w.Candle.Open,
				High:   w.Candle.High,
				Low:    w.Candle.Low,
				Close:  w.Candle.Close,
				Volume: int64(math.Round(w.Candle.Volume)),
			},
		}, nil

	case KindSignalCreated, KindSignalUpdated:
		if s, ok := decodeSignal(data); ok {
			return s, nil
		}
		// still dispatched so the signals list gets invalidated
		return rawPayload(data)

	case KindBotStatus:
		var s StatusPayload
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil

	case KindPositionsChanged, KindOrdersChanged, KindTradeFilled:
		return rawPayload(data)
	}

	return nil, fmt.Errorf("unhandled kind %q", kind)
}

// decodeSignal accepts both the flat signal object and the {"signal": {...}} wrapper
func decodeSignal(data jsoniter.RawMessage) (SignalPayload, bool) {
	var wrapped struct {
		Signal *SignalPayload `json:"signal"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Signal != nil && wrapped.Signal.ID != "" {
		return *wrapped.Signal, true
	}

	var s SignalPayload
	if err := json.Unmarshal(data, &s); err != nil || s.ID == "" {
		return SignalPayload{}, false
	}
	return s, true
}

func rawPayload(data jsoniter.RawMessage) (Payload, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	raw := make(RawPayload, len(data))
	copy(raw, data)
	return raw, nil
}

// -----------------------------------------------------------------------------
// Encode
// -----------------------------------------------------------------------------

// Encode renders an envelope in the {type, ts, data} wire form
func Encode(env Envelope) ([]byte, error) {
	if !env.Kind.Valid() {
		return nil, fmt.Errorf("cannot encode unknown kind %q", env.Kind)
	}
	data, err := json.Marshal(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", env.Kind, err)
	}
	return json.Marshal(wireEnvelope{Type: string(env.Kind), Ts: env.Timestamp, Data: data})
}
