package querycache

import (
	"context"

	"trading-console/src/apiclient"
	"trading-console/src/models"
)

// decisionLogLimit is how many decision log entries the console shows
const decisionLogLimit = 50

// RegisterAPI binds every query key to its REST call. Candles follow the configured series.
func RegisterAPI(c *Cache, api *apiclient.Client, stream models.MStreamConfig) {
	c.Register(models.QueryKeySignals, func(ctx context.Context) (interface{}, error) {
		return api.ListSignals(ctx, "")
	})
	c.Register(models.QueryKeyPositions, func(ctx context.Context) (interface{}, error) {
		return api.ListPositions(ctx)
	})
	c.Register(models.QueryKeyOrders, func(ctx context.Context) (interface{}, error) {
		return api.ListOrders(ctx)
	})
	c.Register(models.QueryKeyTrades, func(ctx context.Context) (interface{}, error) {
		return api.ListTrades(ctx)
	})
	c.Register(models.QueryKeyCandles, func(ctx context.Context) (interface{}, error) {
		return api.GetCandles(ctx, stream.Instrument, stream.Timeframe)
	})
	c.Register(models.QueryKeyBotStatus, func(ctx context.Context) (interface{}, error) {
		return api.GetBotStatus(ctx)
	})
	c.Register(models.QueryKeySettings, func(ctx context.Context) (interface{}, error) {
		return api.GetSettings(ctx)
	})
	c.Register(models.QueryKeyDecisionLog, func(ctx context.Context) (interface{}, error) {
		return api.ListDecisionLog(ctx, decisionLogLimit)
	})
	c.Register(models.QueryKeyDailyStats, func(ctx context.Context) (interface{}, error) {
		return api.DailyStats(ctx)
	})
}
