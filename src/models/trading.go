package models

// -----------------------------------------------------------------------------
// Trading entities served by the bot backend. The console reads them,
// it never enforces their lifecycles.
// -----------------------------------------------------------------------------

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

const (
	SignalPendingReview = "pending_review"
	SignalApproved      = "approved"
	SignalRejected      = "rejected"
	SignalExecuted      = "executed"
	SignalExpired       = "expired"
)

type MSignal struct {
	ID           string                 `json:"id"`
	InstrumentID string                 `json:"instrument_id"`
	Ts           float64                `json:"ts"`
	Side         string                 `json:"side"`
	Entry        float64                `json:"entry"`
	SL           float64                `json:"sl"`
	TP           float64                `json:"tp"`
	Size         float64                `json:"size"`
	R            float64                `json:"r"`
	Reason       string                 `json:"reason"`
	Status       string                 `json:"status"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
	Comment      string                 `json:"comment,omitempty"`
}

type MPosition struct {
	InstrumentID  string   `json:"instrument_id"`
	Side          string   `json:"side"`
	Qty           float64  `json:"qty"`
	AvgPrice      float64  `json:"avg_price"`
	UnrealizedPnL float64  `json:"unrealized_pnl"`
	RealizedPnL   float64  `json:"realized_pnl"`
	SL            *float64 `json:"sl,omitempty"`
	TP            *float64 `json:"tp,omitempty"`
	OpenedTs      float64  `json:"opened_ts"`
}

type MOrder struct {
	OrderID      string  `json:"order_id"`
	InstrumentID string  `json:"instrument_id"`
	Ts           float64 `json:"ts"`
	Side         string  `json:"side"`
	Type         string  `json:"type"`
	Price        float64 `json:"price"`
	Qty          float64 `json:"qty"`
	FilledQty    float64 `json:"filled_qty"`
	Status       string  `json:"status"`
}

type MTrade struct {
	TradeID      string  `json:"trade_id"`
	InstrumentID string  `json:"instrument_id"`
	Ts           float64 `json:"ts"`
	Side         string  `json:"side"`
	Price        float64 `json:"price"`
	Qty          float64 `json:"qty"`
	OrderID      string  `json:"order_id"`
}

type MDecisionLog struct {
	ID      string      `json:"id"`
	Ts      float64     `json:"ts"`
	Type    string      `json:"type"`
	Message string      `json:"message"`
	Payload interface{} `json:"payload,omitempty"`
}

// -----------------------------------------------------------------------------

type MBotConnection struct {
	MarketData string `json:"market_data"`
	Broker     string `json:"broker"`
}

type MBotSession struct {
	Market     string `json:"market"`
	Timezone   string `json:"timezone"`
	TradingDay string `json:"trading_day"`
	IsOpen     bool   `json:"is_open"`
}

type MBotStatus struct {
	IsRunning          bool           `json:"is_running"`
	Mode               string         `json:"mode"`
	IsPaper            bool           `json:"is_paper"`
	ActiveInstrumentID string         `json:"active_instrument_id"`
	Connection         MBotConnection `json:"connection"`
	Session            *MBotSession   `json:"session,omitempty"`
}

// -----------------------------------------------------------------------------

// MRiskSettings is passed through untouched between the settings form and the backend.
type MRiskSettings struct {
	RiskProfile                  string          `json:"risk_profile"`
	RiskPerTradePct              float64         `json:"risk_per_trade_pct"`
	DailyLossLimitPct            float64         `json:"daily_loss_limit_pct"`
	MaxConcurrentPositions       int             `json:"max_concurrent_positions"`
	MaxTradesPerDay              *int            `json:"max_trades_per_day,omitempty"`
	CooldownAfterLosses          *MCooldownRule  `json:"cooldown_after_losses,omitempty"`
	RRTarget                     *float64        `json:"rr_target,omitempty"`
	TimeStopBars                 *int            `json:"time_stop_bars,omitempty"`
	CloseBeforeSessionEndMinutes *int            `json:"close_before_session_end_minutes,omitempty"`

	// Strictness / autotrading knobs, flattened on the wire.
	MRiskStrictness
}

type MCooldownRule struct {
	Losses  int `json:"losses"`
	Minutes int `json:"minutes"`
}

type MRiskStrictness struct {
	ATRStopHardMin    *float64 `json:"atr_stop_hard_min,omitempty"`
	ATRStopHardMax    *float64 `json:"atr_stop_hard_max,omitempty"`
	ATRStopSoftMin    *float64 `json:"atr_stop_soft_min,omitempty"`
	ATRStopSoftMax    *float64 `json:"atr_stop_soft_max,omitempty"`
	RRMin             *float64 `json:"rr_min,omitempty"`
	DecisionThreshold *float64 `json:"decision_threshold,omitempty"`
	WRegime           *float64 `json:"w_regime,omitempty"`
	WVolatility       *float64 `json:"w_volatility,omitempty"`
	WMomentum         *float64 `json:"w_momentum,omitempty"`
	WLevels           *float64 `json:"w_levels,omitempty"`
	WCosts            *float64 `json:"w_costs,omitempty"`
	WLiquidity        *float64 `json:"w_liquidity,omitempty"`
}

// -----------------------------------------------------------------------------

// MDailyStats is the day summary shown on the dashboard header
type MDailyStats struct {
	PnL         float64 `json:"pnl"`
	TradesCount int     `json:"trades_count"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// SummariseDay folds the trade and position lists into MDailyStats.
// PnL is realized plus unrealized; drawdown is the sum of losing open positions.
func SummariseDay(trades []MTrade, positions []MPosition) MDailyStats {
	st := MDailyStats{TradesCount: len(trades)}
	for _, p := range positions {
		st.PnL += p.RealizedPnL + p.UnrealizedPnL
		if p.UnrealizedPnL < 0 {
			st.MaxDrawdown += p.UnrealizedPnL
		}
	}
	return st
}
