package stream

import (
	"fmt"
	"sync"

	"trading-console/src/events"
	"trading-console/src/helpers"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/metrics"
	"trading-console/src/models"
)

// KeysFor returns the cache keys an event of the given kind makes stale.
// Every kind of the closed set has a rule, possibly empty.
func KeysFor(kind events.Kind) []string {
	switch kind {
	case events.KindSignalCreated, events.KindSignalUpdated:
		return []string{models.QueryKeySignals}
	case events.KindPositionsChanged:
		return []string{models.QueryKeyPositions}
	case events.KindOrdersChanged:
		return []string{models.QueryKeyOrders}
	case events.KindTradeFilled:
		return []string{models.QueryKeyTrades, models.QueryKeyPositions}
	case events.KindCandleTick, events.KindBotStatus:
		return nil
	}
	panic(fmt.Sprintf("stream: no invalidation rule for kind %q", kind))
}

// -----------------------------------------------------------------------------
// Bridge
// -----------------------------------------------------------------------------

// Bridge forwards the keys of each dispatched event to its invalidation targets
type Bridge struct {
	Logger  *logger.Logger
	mu      sync.RWMutex
	targets []interfaces.IInvalidator
}

func NewBridge(log *logger.Logger, targets ...interfaces.IInvalidator) *Bridge {
	return &Bridge{Logger: log, targets: targets}
}

// -----------------------------------------------------------------------------

// AddTarget registers another invalidation target
func (b *Bridge) AddTarget(target interfaces.IInvalidator) {
	b.mu.Lock()
	b.targets = append(b.targets, target)
	b.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Apply invalidates the keys mapped from env.Kind on every target and returns them.
// A panicking target is logged and skipped.
func (b *Bridge) Apply(env events.Envelope) []string {
	keys := KeysFor(env.Kind)
	if len(keys) == 0 {
		return nil
	}

	b.mu.RLock()
	targets := b.targets
	b.mu.RUnlock()

	for _, key := range keys {
		metrics.Invalidations.WithLabelValues(key).Inc()
		for _, target := range targets {
			if err := helpers.SafeCall(func() { target.Invalidate(key) }); err != nil && b.Logger != nil {
				b.Logger.Error("Invalidating %s after %s failed: %v", key, env.Kind, err)
			}
		}
	}
	return keys
}
