package interfaces

import "trading-console/src/models"

// -----------------------------------------------------------------------------
// ICandleRepository defines the contract for candle persistence.
// -----------------------------------------------------------------------------

type ICandleRepository interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveCandle upserts one bar, keyed by (instrument, timeframe, time).
	SaveCandle(instrument, timeframe string, candle models.MCandle) error

	// -----------------------------------------------------------------------------

	// SaveCandlesBulk upserts a batch of bars in one transaction.
	SaveCandlesBulk(candles []models.MStoredCandle) error

	// -----------------------------------------------------------------------------

	// LoadCandles returns the newest `limit` bars of one series in ascending time order.
	LoadCandles(instrument, timeframe string, limit int) ([]models.MCandle, error)

	// -----------------------------------------------------------------------------

	// ListSeries returns every stored series with its size and newest bar time.
	ListSeries() ([]models.MSeriesRef, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData drops bars older than retentionDays.
	CleanupOldData(retentionDays int) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
