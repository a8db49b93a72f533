package storage

import (
	"database/sql"
	"fmt"

	"trading-console/src/helpers"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/models"
)

// NewRepository picks the backend named by storage.db_type.
// "none" or an empty type returns nil: the store then runs in memory only.
func NewRepository(cfg *models.MConfig, log *logger.Logger) (interfaces.ICandleRepository, error) {
	switch cfg.Storage.DBType {
	case "", "none":
		return nil, nil
	case "sqlite":
		return NewSQLiteDB(cfg, log), nil
	case "postgres":
		db, err := NewPostgresDB(cfg, log)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, helpers.NewConfigurationError(fmt.Sprintf("unknown storage.db_type %q", cfg.Storage.DBType), nil)
}

// -----------------------------------------------------------------------------

func scanCandles(rows *sql.Rows) ([]models.MCandle, error) {
	var out []models.MCandle
	for rows.Next() {
		var c models.MCandle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, helpers.NewDatabaseError("scanning candle", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("reading candles", err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func scanSeries(rows *sql.Rows) ([]models.MSeriesRef, error) {
	var out []models.MSeriesRef
	for rows.Next() {
		var ref models.MSeriesRef
		if err := rows.Scan(&ref.Instrument, &ref.Timeframe, &ref.Count, &ref.LastTime); err != nil {
			return nil, helpers.NewDatabaseError("scanning series", err)
		}
		if ref.Instrument != "" {
			out = append(out, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("reading series", err)
	}
	return out, nil
}
