package main

import (
	"context"
	"time"

	"trading-console/src/apiclient"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/models"
	"trading-console/src/timeseries"
	"trading-console/src/tracing"
	"trading-console/src/utils"

	"go.opentelemetry.io/otel/attribute"
)

const bootstrapTimeout = 30 * time.Second

// -----------------------------------------------------------------------------

// performInitialLoad rehydrates the store from storage, drops expired rows and, with a
// backend, pulls the configured series' history. Failures are logged, never fatal.
func performInitialLoad(
	ctx context.Context,
	store *timeseries.Store,
	repo interfaces.ICandleRepository,
	api *apiclient.Client,
	config *models.MConfig,
	appLogger *logger.Logger,
) {
	ctx, span := tracing.StartSpan(ctx, "bootstrap",
		attribute.String("instrument", config.Stream.Instrument),
		attribute.String("timeframe", config.Stream.Timeframe),
	)
	defer span.End()

	// 1. Storage
	if repo != nil {
		if err := repo.CleanupOldData(config.Storage.RetentionDays); err != nil {
			appLogger.Warning("Retention cleanup failed: %v", err)
		}
		limit := utils.CalculateMaxCandles(config.Storage.RetentionDays, config.Stream.Timeframe)
		if err := store.RestoreAll(limit); err != nil {
			appLogger.Warning("Restoring series failed: %v", err)
		}
	}

	// 2. Backend history
	if api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	key := timeseries.Key{Instrument: config.Stream.Instrument, Timeframe: config.Stream.Timeframe}
	candles, err := api.GetCandles(ctx, key.Instrument, key.Timeframe)
	if err != nil {
		span.RecordError(err)
		appLogger.Warning("Fetching history for %s failed: %v", key, err)
		return
	}
	store.MergeAll(key, candles)
	appLogger.Info("Loaded %d history candles for %s (%d in memory)", len(candles), key, store.Len(key))

	// 3. Persist what came from the backend
	if repo == nil || len(candles) == 0 {
		return
	}
	rows := make([]models.MStoredCandle, len(candles))
	for i, c := range candles {
		rows[i] = models.MStoredCandle{Instrument: key.Instrument, Timeframe: key.Timeframe, Candle: c}
	}
	if err := repo.SaveCandlesBulk(rows); err != nil {
		appLogger.Warning("Persisting history for %s failed: %v", key, err)
	}
}
