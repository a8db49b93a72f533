package main

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"trading-console/src/events"
	"trading-console/src/logger"
	"trading-console/src/models"
	"trading-console/src/timeseries"
	"trading-console/src/utils"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	subscriberBuffer  = 64
	maxDecisionLog    = 500
	defaultDecisionsN = 50
)

// mockBackend is an in-memory bot backend. It is the sink of a synthetic generator:
// every envelope updates the state and is fanned out to the stream subscribers.
type mockBackend struct {
	Config    *models.MConfig
	Logger    *logger.Logger
	Scheduler *utils.MarketScheduler

	mu        sync.RWMutex
	running   bool
	signals   map[string]*models.MSignal
	positions map[string]*models.MPosition
	orders    []models.MOrder
	trades    []models.MTrade
	decisions []models.MDecisionLog
	settings  models.MRiskSettings
	lastClose map[string]float64
	candles   *timeseries.Store

	subMu       sync.Mutex
	subscribers map[chan events.Envelope]struct{}

	now func() time.Time
}

func newMockBackend(cfg *models.MConfig, log *logger.Logger) *mockBackend {
	return &mockBackend{
		Config:      cfg,
		Logger:      log,
		Scheduler:   utils.NewMarketScheduler([]string{cfg.Stream.Instrument}, log),
		running:     true,
		signals:     make(map[string]*models.MSignal),
		positions:   make(map[string]*models.MPosition),
		lastClose:   make(map[string]float64),
		candles:     timeseries.NewStore(log),
		subscribers: make(map[chan events.Envelope]struct{}),
		settings: models.MRiskSettings{
			RiskProfile:            "balanced",
			RiskPerTradePct:        0.5,
			DailyLossLimitPct:      2,
			MaxConcurrentPositions: 2,
		},
		now: time.Now,
	}
}

// -----------------------------------------------------------------------------
// ISourceSink
// -----------------------------------------------------------------------------

func (b *mockBackend) Ready() {
	b.Logger.Info("Synthetic feed ready")
}

func (b *mockBackend) Fail(err error) {
	b.Logger.Error("Synthetic feed failed: %v", err)
}

// Emit folds one generated envelope into the state and publishes it
func (b *mockBackend) Emit(env events.Envelope) {
	switch env.Kind {
	case events.KindCandleTick:
		tick, _ := env.CandleTick()
		b.candles.Merge(timeseries.Key{Instrument: tick.InstrumentID, Timeframe: tick.Timeframe}, tick.Candle)
		b.markToMarket(tick.InstrumentID, tick.Candle.Close)

	case events.KindSignalCreated:
		sig, _ := env.Signal()
		b.mu.Lock()
		b.signals[sig.ID] = &sig
		b.logDecisionLocked("signal", fmt.Sprintf("%s %s @ %.2f", sig.Side, sig.InstrumentID, sig.Entry), sig)
		b.mu.Unlock()

	case events.KindBotStatus:
		// the generator always reports running; the backend knows better
		env.Payload = events.StatusPayload(b.Status())
	}
	b.publish(env)
}

// -----------------------------------------------------------------------------
// Fan-out
// -----------------------------------------------------------------------------

func (b *mockBackend) subscribe() (<-chan events.Envelope, func()) {
	ch := make(chan events.Envelope, subscriberBuffer)
	b.subMu.Lock()
	b.subscribers[ch] = struct{}{}
	b.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(b.subscribers, ch)
			b.subMu.Unlock()
		})
	}
}

// publish never blocks; a subscriber that falls behind misses events
func (b *mockBackend) publish(env events.Envelope) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- env:
		default:
			b.Logger.Warning("Stream subscriber is behind, dropped %s", env.Kind)
		}
	}
}

func (b *mockBackend) publishRaw(kind events.Kind, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		b.Logger.Error("Encoding %s failed: %v", kind, err)
		return
	}
	b.publish(events.Envelope{Kind: kind, Timestamp: b.now().UnixMilli(), Payload: events.RawPayload(data)})
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (b *mockBackend) Status() models.MBotStatus {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()

	mode := "paper"
	if !running {
		mode = "stopped"
	}
	return models.MBotStatus{
		IsRunning:          running,
		Mode:               mode,
		IsPaper:            true,
		ActiveInstrumentID: b.Config.Stream.Instrument,
		Connection:         models.MBotConnection{MarketData: "connected", Broker: "connected"},
		Session:            b.Scheduler.Session(b.Config.Stream.Instrument, b.now()),
	}
}

// Signals returns signals newest first, optionally filtered by status
func (b *mockBackend) Signals(status string) []models.MSignal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.MSignal, 0, len(b.signals))
	for _, s := range b.signals {
		if status == "" || s.Status == status {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts > out[j].Ts })
	return out
}

func (b *mockBackend) Positions() []models.MPosition {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.MPosition, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

func (b *mockBackend) Orders() []models.MOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.MOrder(nil), b.orders...)
}

func (b *mockBackend) Trades() []models.MTrade {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.MTrade(nil), b.trades...)
}

func (b *mockBackend) Settings() models.MRiskSettings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// Decisions returns the newest limit entries, newest first
func (b *mockBackend) Decisions(limit int) []models.MDecisionLog {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 {
		limit = defaultDecisionsN
	}
	out := make([]models.MDecisionLog, 0, limit)
	for i := len(b.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, b.decisions[i])
	}
	return out
}

func (b *mockBackend) Candles(instrument, tf string) []models.MCandle {
	return b.candles.Series(timeseries.Key{Instrument: instrument, Timeframe: tf})
}

// -----------------------------------------------------------------------------
// Mutations
// -----------------------------------------------------------------------------

var (
	errUnknownSignal = errors.New("unknown signal")
	errNotPending    = errors.New("signal is not pending review")
)

// ApproveSignal fills the signal at its entry price: one order, one trade and a position
func (b *mockBackend) ApproveSignal(id, comment string) error {
	b.mu.Lock()
	sig, ok := b.signals[id]
	if !ok {
		b.mu.Unlock()
		return errUnknownSignal
	}
	if sig.Status != models.SignalPendingReview {
		b.mu.Unlock()
		return errNotPending
	}

	now := b.now()
	ts := float64(now.UnixMilli()) / 1000.0
	sig.Status = models.SignalExecuted
	sig.Comment = comment

	order := models.MOrder{
		OrderID:      uuid.NewString(),
		InstrumentID: sig.InstrumentID,
		Ts:           ts,
		Side:         sig.Side,
		Type:         "market",
		Price:        sig.Entry,
		Qty:          sig.Size,
		FilledQty:    sig.Size,
		Status:       "filled",
	}
	trade := models.MTrade{
		TradeID:      uuid.NewString(),
		InstrumentID: sig.InstrumentID,
		Ts:           ts,
		Side:         sig.Side,
		Price:        sig.Entry,
		Qty:          sig.Size,
		OrderID:      order.OrderID,
	}
	b.orders = append(b.orders, order)
	b.trades = append(b.trades, trade)
	b.applyFillLocked(*sig, ts)
	b.logDecisionLocked("approve", fmt.Sprintf("signal %s approved", id), map[string]string{"comment": comment})
	updated := *sig
	b.mu.Unlock()

	b.publish(events.Envelope{Kind: events.KindSignalUpdated, Timestamp: now.UnixMilli(), Payload: events.SignalPayload(updated)})
	b.publishRaw(events.KindOrdersChanged, []models.MOrder{order})
	b.publishRaw(events.KindTradeFilled, trade)
	b.publishRaw(events.KindPositionsChanged, b.Positions())
	return nil
}

// RejectSignal marks a pending signal rejected
func (b *mockBackend) RejectSignal(id, comment string) error {
	b.mu.Lock()
	sig, ok := b.signals[id]
	if !ok {
		b.mu.Unlock()
		return errUnknownSignal
	}
	if sig.Status != models.SignalPendingReview {
		b.mu.Unlock()
		return errNotPending
	}
	sig.Status = models.SignalRejected
	sig.Comment = comment
	b.logDecisionLocked("reject", fmt.Sprintf("signal %s rejected", id), map[string]string{"comment": comment})
	updated := *sig
	b.mu.Unlock()

	b.publish(events.Envelope{Kind: events.KindSignalUpdated, Timestamp: b.now().UnixMilli(), Payload: events.SignalPayload(updated)})
	return nil
}

func (b *mockBackend) SetRunning(on bool) {
	b.mu.Lock()
	b.running = on
	b.logDecisionLocked("bot", fmt.Sprintf("bot running=%v", on), nil)
	b.mu.Unlock()

	b.publish(events.Envelope{Kind: events.KindBotStatus, Timestamp: b.now().UnixMilli(), Payload: events.StatusPayload(b.Status())})
}

func (b *mockBackend) UpdateSettings(s models.MRiskSettings) {
	b.mu.Lock()
	b.settings = s
	b.logDecisionLocked("settings", "risk settings updated", s)
	b.mu.Unlock()
}

// -----------------------------------------------------------------------------

// applyFillLocked nets a fill into the instrument's position. b.mu must be held.
func (b *mockBackend) applyFillLocked(sig models.MSignal, ts float64) {
	qty := sig.Size
	if sig.Side == models.SideSell {
		qty = -qty
	}

	p, ok := b.positions[sig.InstrumentID]
	if !ok {
		p = &models.MPosition{InstrumentID: sig.InstrumentID, OpenedTs: ts}
		b.positions[sig.InstrumentID] = p
	}
	signed := p.Qty
	if p.Side == models.SideSell {
		signed = -signed
	}

	switch {
	case signed == 0 || (signed > 0) == (qty > 0):
		// open or add
		total := signed + qty
		p.AvgPrice = (p.AvgPrice*abs(signed) + sig.Entry*abs(qty)) / abs(total)
		signed = total
	default:
		// reduce, close or flip
		closed := minf(abs(signed), abs(qty))
		dir := 1.0
		if signed < 0 {
			dir = -1
		}
		p.RealizedPnL += (sig.Entry - p.AvgPrice) * closed * dir
		signed += qty
		if abs(qty) > closed {
			p.AvgPrice = sig.Entry
			p.OpenedTs = ts
		}
	}

	p.Qty = abs(signed)
	p.Side = models.SideBuy
	if signed < 0 {
		p.Side = models.SideSell
	}
	p.SL, p.TP = &sig.SL, &sig.TP
	b.markLocked(p)
}

func (b *mockBackend) markToMarket(instrument string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastClose[instrument] = price
	if p, ok := b.positions[instrument]; ok {
		b.markLocked(p)
	}
}

func (b *mockBackend) markLocked(p *models.MPosition) {
	last, ok := b.lastClose[p.InstrumentID]
	if !ok || p.Qty == 0 {
		p.UnrealizedPnL = 0
		return
	}
	diff := last - p.AvgPrice
	if p.Side == models.SideSell {
		diff = -diff
	}
	p.UnrealizedPnL = diff * p.Qty
}

func (b *mockBackend) logDecisionLocked(kind, message string, payload interface{}) {
	b.decisions = append(b.decisions, models.MDecisionLog{
		ID:      uuid.NewString(),
		Ts:      float64(b.now().UnixMilli()) / 1000.0,
		Type:    kind,
		Message: message,
		Payload: payload,
	})
	if n := len(b.decisions); n > maxDecisionLog {
		b.decisions = append([]models.MDecisionLog(nil), b.decisions[n-maxDecisionLog:]...)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
