// Package events defines the envelope every inbound stream message is normalised into.
//
// The set of kinds is closed. Payloads form a tagged union: each kind has exactly one
// payload type, and every payload type carries the unexported isPayload marker so that
// nothing outside this package can add a variant.
package events

import (
	"fmt"

	"trading-console/src/models"
)

// Kind names one of the event types the bot backend can push. The value is the wire name.
type Kind string

const (
	KindCandleTick       Kind = "kline"
	KindSignalCreated    Kind = "signal_created"
	KindSignalUpdated    Kind = "signal_updated"
	KindPositionsChanged Kind = "positions_updated"
	KindOrdersChanged    Kind = "orders_updated"
	KindTradeFilled      Kind = "trade_filled"
	KindBotStatus        Kind = "bot_status"
)

var allKinds = []Kind{
	KindCandleTick,
	KindSignalCreated,
	KindSignalUpdated,
	KindPositionsChanged,
	KindOrdersChanged,
	KindTradeFilled,
	KindBotStatus,
}

// -----------------------------------------------------------------------------

// Kinds returns the closed set of kinds
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// -----------------------------------------------------------------------------

// Valid reports whether k belongs to the closed set
func (k Kind) Valid() bool {
	switch k {
	case KindCandleTick, KindSignalCreated, KindSignalUpdated,
		KindPositionsChanged, KindOrdersChanged, KindTradeFilled, KindBotStatus:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

func (k Kind) String() string {
	return string(k)
}

// -----------------------------------------------------------------------------

// ParseKind maps a wire name onto a Kind
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	if !k.Valid() {
		return "", fmt.Errorf("unknown event kind %q", name)
	}
	return k, nil
}

// -----------------------------------------------------------------------------
// Envelope & payloads
// -----------------------------------------------------------------------------

// Envelope is one normalised event. Timestamp is epoch milliseconds.
// Observers share the envelope and must treat it as read-only.
type Envelope struct {
	Kind      Kind
	Timestamp int64
	Payload   Payload
}

// Payload is implemented by the payload type of every kind
type Payload interface {
	isPayload()
}

// CandleTick carries the currently forming (or just closed) bar of one series
type CandleTick struct {
	InstrumentID string         `json:"instrument_id"`
	Timeframe    string         `json:"tf"`
	Candle       models.MCandle `json:"candle"`
}

// SignalPayload is the body of signal_created and signal_updated
type SignalPayload models.MSignal

// StatusPayload is the body of bot_status
type StatusPayload models.MBotStatus

// RawPayload keeps bodies the console only reacts to by invalidating caches
// (positions, orders, fills). It is the verbatim JSON of the data field.
type RawPayload []byte

func (CandleTick) isPayload()    {}
func (SignalPayload) isPayload() {}
func (StatusPayload) isPayload() {}
func (RawPayload) isPayload()    {}

// -----------------------------------------------------------------------------

// MarshalJSON emits the stored bytes unchanged
func (r RawPayload) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// -----------------------------------------------------------------------------
// Typed accessors
// -----------------------------------------------------------------------------

// CandleTick returns the candle payload when the envelope is a candle tick
func (e Envelope) CandleTick() (CandleTick, bool) {
	p, ok := e.Payload.(CandleTick)
	return p, ok && e.Kind == KindCandleTick
}

// -----------------------------------------------------------------------------

// Signal returns the signal payload of signal_created / signal_updated envelopes
func (e Envelope) Signal() (models.MSignal, bool) {
	p, ok := e.Payload.(SignalPayload)
	if !ok || (e.Kind != KindSignalCreated && e.Kind != KindSignalUpdated) {
		return models.MSignal{}, false
	}
	return models.MSignal(p), true
}

// -----------------------------------------------------------------------------

// Status returns the bot status payload of a heartbeat
func (e Envelope) Status() (models.MBotStatus, bool) {
	p, ok := e.Payload.(StatusPayload)
	if !ok || e.Kind != KindBotStatus {
		return models.MBotStatus{}, false
	}
	return models.MBotStatus(p), true
}
