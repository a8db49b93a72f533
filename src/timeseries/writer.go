package timeseries

import (
	"sync"

	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/metrics"
	"trading-console/src/models"
)

const (
	writeQueueSize = 4096
	writeBatchSize = 256
)

// writer persists merged candles off the dispatch path. Candles queue up while a
// write is in flight and go out together in the next bulk upsert. A full queue
// drops the candle rather than block the merge.
type writer struct {
	repo   interfaces.ICandleRepository
	logger *logger.Logger

	queue  chan models.MStoredCandle
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func newWriter(repo interfaces.ICandleRepository, log *logger.Logger, size int) *writer {
	w := &writer{
		repo:   repo,
		logger: log,
		queue:  make(chan models.MStoredCandle, size),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go w.run()
	return w
}

// -----------------------------------------------------------------------------

func (w *writer) enqueue(sc models.MStoredCandle) {
	select {
	case <-w.done:
		metrics.CandleWrites.WithLabelValues("dropped").Inc()
		return
	default:
	}

	select {
	case w.queue <- sc:
	default:
		metrics.CandleWrites.WithLabelValues("dropped").Inc()
		w.logger.Warning("Candle write queue full, dropping %s@%s/%d", sc.Instrument, sc.Timeframe, sc.Candle.Time)
	}
}

// -----------------------------------------------------------------------------

func (w *writer) run() {
	defer close(w.exited)

	batch := make([]models.MStoredCandle, 0, writeBatchSize)
	for {
		select {
		case sc := <-w.queue:
			batch = w.drain(append(batch[:0], sc))
			w.save(batch)

		case <-w.done:
			// flush what is left
			for {
				batch = w.drain(batch[:0])
				if len(batch) == 0 {
					return
				}
				w.save(batch)
			}
		}
	}
}

// drain tops batch up with whatever is already queued
func (w *writer) drain(batch []models.MStoredCandle) []models.MStoredCandle {
	for len(batch) < writeBatchSize {
		select {
		case sc := <-w.queue:
			batch = append(batch, sc)
		default:
			return batch
		}
	}
	return batch
}

func (w *writer) save(batch []models.MStoredCandle) {
	if err := w.repo.SaveCandlesBulk(batch); err != nil {
		metrics.CandleWrites.WithLabelValues("failed").Add(float64(len(batch)))
		w.logger.Warning("Persisting %d candles failed: %v", len(batch), err)
		return
	}
	metrics.CandleWrites.WithLabelValues("saved").Add(float64(len(batch)))
}

// -----------------------------------------------------------------------------

// close stops accepting candles, flushes the queue and waits for the last write
func (w *writer) close() {
	w.once.Do(func() { close(w.done) })
	<-w.exited
}
