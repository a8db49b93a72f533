package utils

import (
	"sort"
	"sync"
	"time"

	"trading-console/src/logger"
	"trading-console/src/models"
)

// MarketScheduler tracks the exchange calendars of the instruments the console shows
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(instruments []string, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{Logger: l}
	ms.SetInstruments(instruments)
	return ms
}

// -----------------------------------------------------------------------------

// SetInstruments replaces the tracked set. Instruments on the same exchange share one calendar.
func (ms *MarketScheduler) SetInstruments(instruments []string) {
	byMIC := make(map[string]*TradingCalendar)
	calendars := make(map[string]*TradingCalendar, len(instruments))
	for _, id := range instruments {
		mic := MICFor(id)
		cal, ok := byMIC[mic]
		if !ok {
			cal = GetCalendar(id)
			byMIC[mic] = cal
		}
		calendars[id] = cal
	}

	ms.mu.Lock()
	ms.Calendars = calendars
	ms.mu.Unlock()

	ms.Logger.Info("MarketScheduler: %d instruments on %d exchanges", len(instruments), len(byMIC))
}

// -----------------------------------------------------------------------------

// AnyMarketOpen reports whether any tracked exchange is in session at now
func (ms *MarketScheduler) AnyMarketOpen(now time.Time) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, cal := range ms.Calendars {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// Session returns the session block for one instrument, or nil when it is not tracked
func (ms *MarketScheduler) Session(instrument string, now time.Time) *models.MBotSession {
	ms.mu.RLock()
	cal, ok := ms.Calendars[instrument]
	ms.mu.RUnlock()
	if !ok {
		return nil
	}
	return cal.Session(now)
}

// -----------------------------------------------------------------------------

// Instruments returns the tracked ids in sorted order
func (ms *MarketScheduler) Instruments() []string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]string, 0, len(ms.Calendars))
	for id := range ms.Calendars {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
