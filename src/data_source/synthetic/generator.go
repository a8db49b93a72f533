// Package synthetic produces a deterministic demo feed: a cyclic price, one-minute
// bars built from it, two signals per cycle and a periodic bot heartbeat.
package synthetic

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"trading-console/src/events"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/models"
	"trading-console/src/utils"
)

const (
	barMs       = 60_000
	heartbeatMs = 5_000

	// seconds of the cycle at which a demo signal fires
	signalSecondA = 120
	signalSecondB = 480

	// longest gap between ticks that is scanned for signal seconds
	maxCatchUpSec = 60

	signalSize   = 10
	signalR      = 2.0
	signalReason = "Cyclic demo signal"
)

// Generator is the demo stream source
type Generator struct {
	Config   *models.MConfig
	Logger   *logger.Logger
	Calendar *utils.TradingCalendar

	instrument string
	base       float64
	interval   time.Duration

	// mu guards the tick state below
	mu         sync.Mutex
	rnd        *rand.Rand
	bar        *models.MCandle
	barFrame   int64
	lastSec    int64
	lastBucket int64
	started    bool

	cancel context.CancelFunc
}

// -----------------------------------------------------------------------------

func NewGenerator(cfg *models.MConfig, log *logger.Logger) *Generator {
	return NewGeneratorWithRand(cfg, log, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewGeneratorWithRand uses rnd for volumes and signal sides, making Step reproducible
func NewGeneratorWithRand(cfg *models.MConfig, log *logger.Logger, rnd *rand.Rand) *Generator {
	base := cfg.Synthetic.BasePrice
	if base <= 0 {
		base = DefaultBasePrice
	}
	interval := time.Duration(cfg.Synthetic.TickIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	return &Generator{
		Config:     cfg,
		Logger:     log,
		Calendar:   utils.GetCalendar(cfg.Stream.Instrument),
		instrument: cfg.Stream.Instrument,
		base:       base,
		interval:   interval,
		rnd:        rnd,
		lastBucket: -1,
	}
}

// -----------------------------------------------------------------------------

func (g *Generator) Name() string {
	return "synthetic"
}

// -----------------------------------------------------------------------------

// Start reports ready immediately, then ticks from its own goroutine until ctx ends or Stop
func (g *Generator) Start(ctx context.Context, sink interfaces.ISourceSink) error {
	ctx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()

	sink.Ready()
	go g.run(ctx, sink)
	return nil
}

// -----------------------------------------------------------------------------

// Stop cancels the tick loop without waiting for it
func (g *Generator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	return nil
}

// -----------------------------------------------------------------------------

func (g *Generator) run(ctx context.Context, sink interfaces.ISourceSink) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.Logger.Info("Synthetic feed started for %s (tick %v)", g.instrument, g.interval)

	emit := func(now time.Time) {
		for _, env := range g.Step(now.UnixMilli()) {
			if ctx.Err() != nil {
				return
			}
			sink.Emit(env)
		}
	}

	// first step carries the initial heartbeat
	emit(time.Now())
	for {
		select {
		case <-ctx.Done():
			g.Logger.Debug("Synthetic feed stopped")
			return
		case now := <-ticker.C:
			emit(now)
		}
	}
}

// -----------------------------------------------------------------------------
// Step
// -----------------------------------------------------------------------------

// Step advances the feed to epoch millisecond now and returns the envelopes of that tick:
// a kline, then any signal whose second was crossed, then a heartbeat on a new 5s bucket.
func (g *Generator) Step(now int64) []events.Envelope {
	g.mu.Lock()
	defer g.mu.Unlock()

	price := PriceAt(g.base, now)
	out := make([]events.Envelope, 0, 3)

	// 1. Bar
	frame := now / barMs * barMs
	if g.bar == nil || frame != g.barFrame {
		g.barFrame = frame
		g.bar = &models.MCandle{Time: frame / 1000, Open: price, High: price, Low: price, Close: price}
	} else {
		g.bar.Close = price
		if price > g.bar.High {
			g.bar.High = price
		}
		if price < g.bar.Low {
			g.bar.Low = price
		}
		g.bar.Volume += int64(g.rnd.Intn(10))
	}
	out = append(out, events.Envelope{
		Kind:      events.KindCandleTick,
		Timestamp: now,
		Payload:   events.CandleTick{InstrumentID: g.instrument, Timeframe: events.DefaultTimeframe, Candle: *g.bar},
	})

	// 2. Signals on crossed seconds
	sec := now / 1000
	from := sec
	if g.started {
		from = g.lastSec + 1
		if from < sec-maxCatchUpSec+1 {
			from = sec - maxCatchUpSec + 1
		}
	}
	for s := from; s <= sec; s++ {
		if soc := secondOfCycle(s); soc == signalSecondA || soc == signalSecondB {
			out = append(out, g.signal(now, price))
		}
	}
	if !g.started || sec > g.lastSec {
		g.lastSec = sec
	}
	g.started = true

	// 3. Heartbeat
	if bucket := now / heartbeatMs; bucket != g.lastBucket {
		g.lastBucket = bucket
		out = append(out, g.heartbeat(now))
	}

	return out
}

// -----------------------------------------------------------------------------

func (g *Generator) signal(now int64, price float64) events.Envelope {
	side := models.SideBuy
	sl, tp := price*0.99, price*1.02
	if g.rnd.Intn(2) == 1 {
		side = models.SideSell
		sl, tp = price*1.01, price*0.98
	}

	return events.Envelope{
		Kind:      events.KindSignalCreated,
		Timestamp: now,
		Payload: events.SignalPayload{
			ID:           fmt.Sprintf("mock-%d", now),
			InstrumentID: g.instrument,
			Ts:           float64(now) / 1000.0,
			Side:         side,
			Entry:        price,
			SL:           sl,
			TP:           tp,
			Size:         signalSize,
			R:            signalR,
			Reason:       signalReason,
			Status:       models.SignalPendingReview,
			Meta:         map[string]interface{}{"strategy": "cyclic_demo"},
		},
	}
}

// -----------------------------------------------------------------------------

func (g *Generator) heartbeat(now int64) events.Envelope {
	return events.Envelope{
		Kind:      events.KindBotStatus,
		Timestamp: now,
		Payload: events.StatusPayload{
			IsRunning:          true,
			Mode:               "paper",
			IsPaper:            true,
			ActiveInstrumentID: g.instrument,
			Connection:         models.MBotConnection{MarketData: "connected", Broker: "connected"},
			Session:            g.Calendar.Session(time.UnixMilli(now)),
		},
	}
}
