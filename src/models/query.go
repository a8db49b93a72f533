package models

// Query keys of the request/response cache
const (
	QueryKeySignals     = "signals"
	QueryKeyPositions   = "positions"
	QueryKeyOrders      = "orders"
	QueryKeyTrades      = "trades"
	QueryKeyCandles     = "candles"
	QueryKeyBotStatus   = "bot_status"
	QueryKeySettings    = "settings"
	QueryKeyDecisionLog = "decision_log"
	QueryKeyDailyStats  = "daily_stats"
)

// AllQueryKeys lists every key the cache knows about
var AllQueryKeys = []string{
	QueryKeySignals,
	QueryKeyPositions,
	QueryKeyOrders,
	QueryKeyTrades,
	QueryKeyCandles,
	QueryKeyBotStatus,
	QueryKeySettings,
	QueryKeyDecisionLog,
	QueryKeyDailyStats,
}
