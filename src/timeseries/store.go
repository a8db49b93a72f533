// Package timeseries keeps the candle series received from the stream, one per
// instrument/timeframe pair, sorted by bar time with one bar per time.
package timeseries

import (
	"sort"
	"sync"

	"trading-console/src/events"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/metrics"
	"trading-console/src/models"
)

// Key identifies one series
type Key struct {
	Instrument string
	Timeframe  string
}

func (k Key) String() string {
	return k.Instrument + "@" + k.Timeframe
}

// MergeResult reports what Merge did with a candle
type MergeResult int

const (
	Replaced MergeResult = iota
	Appended
	Inserted
)

func (r MergeResult) String() string {
	switch r {
	case Replaced:
		return "replaced"
	case Appended:
		return "appended"
	case Inserted:
		return "inserted"
	}
	return "unknown"
}

// -----------------------------------------------------------------------------

type series struct {
	mu      sync.Mutex
	candles []models.MCandle
}

// Store holds every series. Merges on different keys never share a lock.
type Store struct {
	Logger *logger.Logger

	mu     sync.RWMutex
	series map[Key]*series

	repo   interfaces.ICandleRepository
	writer *writer
}

func NewStore(log *logger.Logger) *Store {
	return &Store{Logger: log, series: make(map[Key]*series)}
}

// -----------------------------------------------------------------------------

// WithRepository makes every merged candle write through to repo. Writes happen
// on a background writer; call Close to flush it.
func (s *Store) WithRepository(repo interfaces.ICandleRepository) *Store {
	s.repo = repo
	s.writer = newWriter(repo, s.Logger, writeQueueSize)
	return s
}

// -----------------------------------------------------------------------------

// Close flushes pending writes and stops the writer. Merges after Close are not persisted.
func (s *Store) Close() {
	if s.writer != nil {
		s.writer.close()
	}
}

// -----------------------------------------------------------------------------

func (s *Store) get(key Key, create bool) *series {
	s.mu.RLock()
	sr := s.series[key]
	s.mu.RUnlock()
	if sr != nil || !create {
		return sr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sr = s.series[key]; sr == nil {
		sr = &series{}
		s.series[key] = sr
	}
	return sr
}

// -----------------------------------------------------------------------------
// Merge
// -----------------------------------------------------------------------------

// Merge folds one candle into the series for key. A candle whose time is already
// present replaces that bar, a newer one is appended and an older one is inserted
// at its sorted position.
func (s *Store) Merge(key Key, c models.MCandle) MergeResult {
	sr := s.get(key, true)

	sr.mu.Lock()
	res := mergeInto(&sr.candles, c)
	sr.mu.Unlock()

	metrics.CandleMerges.WithLabelValues(res.String()).Inc()

	if s.writer != nil {
		s.writer.enqueue(models.MStoredCandle{Instrument: key.Instrument, Timeframe: key.Timeframe, Candle: c})
	}
	return res
}

func mergeInto(candles *[]models.MCandle, c models.MCandle) MergeResult {
	cs := *candles
	n := len(cs)

	// 1. Fast paths: update of the forming bar, or a new bar
	if n > 0 && cs[n-1].Time == c.Time {
		cs[n-1] = c
		return Replaced
	}
	if n == 0 || c.Time > cs[n-1].Time {
		*candles = append(cs, c)
		return Appended
	}

	// 2. Late arrival
	i := sort.Search(n, func(i int) bool { return cs[i].Time >= c.Time })
	if cs[i].Time == c.Time {
		cs[i] = c
		return Replaced
	}
	cs = append(cs, models.MCandle{})
	copy(cs[i+1:], cs[i:])
	cs[i] = c
	*candles = cs
	return Inserted
}

// -----------------------------------------------------------------------------

// MergeAll merges a batch without writing it through, e.g. history fetched from the backend
// or rows loaded from storage.
func (s *Store) MergeAll(key Key, candles []models.MCandle) {
	sr := s.get(key, true)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	for _, c := range candles {
		metrics.CandleMerges.WithLabelValues(mergeInto(&sr.candles, c).String()).Inc()
	}
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// Series returns a copy of the series, oldest first. Unknown keys give nil.
func (s *Store) Series(key Key) []models.MCandle {
	sr := s.get(key, false)
	if sr == nil {
		return nil
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	out := make([]models.MCandle, len(sr.candles))
	copy(out, sr.candles)
	return out
}

// Tail returns up to n of the newest candles
func (s *Store) Tail(key Key, n int) []models.MCandle {
	all := s.Series(key)
	if n > 0 && len(all) > n {
		return all[len(all)-n:]
	}
	return all
}

func (s *Store) Latest(key Key) (models.MCandle, bool) {
	sr := s.get(key, false)
	if sr == nil {
		return models.MCandle{}, false
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if len(sr.candles) == 0 {
		return models.MCandle{}, false
	}
	return sr.candles[len(sr.candles)-1], true
}

func (s *Store) Len(key Key) int {
	sr := s.get(key, false)
	if sr == nil {
		return 0
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.candles)
}

// Keys lists every series, sorted
func (s *Store) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Instrument != keys[j].Instrument {
			return keys[i].Instrument < keys[j].Instrument
		}
		return keys[i].Timeframe < keys[j].Timeframe
	})
	return keys
}

// -----------------------------------------------------------------------------
// Stream & storage wiring
// -----------------------------------------------------------------------------

// HandleEnvelope is a kline observer; other kinds are ignored
func (s *Store) HandleEnvelope(env events.Envelope) {
	tick, ok := env.CandleTick()
	if !ok {
		return
	}
	s.Merge(Key{Instrument: tick.InstrumentID, Timeframe: tick.Timeframe}, tick.Candle)
}

// -----------------------------------------------------------------------------

// Restore loads up to limit stored candles for key. Returns how many bars the series holds afterwards.
func (s *Store) Restore(key Key, limit int) (int, error) {
	if s.repo == nil {
		return s.Len(key), nil
	}
	candles, err := s.repo.LoadCandles(key.Instrument, key.Timeframe, limit)
	if err != nil {
		return s.Len(key), err
	}
	s.MergeAll(key, candles)
	s.Logger.Info("Restored %d candles for %s", len(candles), key)
	return s.Len(key), nil
}

// -----------------------------------------------------------------------------

// RestoreAll rehydrates every series the repository knows about
func (s *Store) RestoreAll(limit int) error {
	if s.repo == nil {
		return nil
	}
	refs, err := s.repo.ListSeries()
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if _, err := s.Restore(Key{Instrument: ref.Instrument, Timeframe: ref.Timeframe}, limit); err != nil {
			s.Logger.Warning("Restoring %s@%s failed: %v", ref.Instrument, ref.Timeframe, err)
		}
	}
	return nil
}
