package models

// MCandle is one OHLCV bar. Time is the bar-open timestamp in unix seconds.
type MCandle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// -----------------------------------------------------------------------------

// MStoredCandle is a candle together with the series it belongs to, as persisted.
type MStoredCandle struct {
	Instrument string  `json:"instrument_id"`
	Timeframe  string  `json:"tf"`
	Candle     MCandle `json:"candle"`
}

// MSeriesRef names one persisted series
type MSeriesRef struct {
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`
	Count      int    `json:"count"`
	LastTime   int64  `json:"last_time"`
}

// MSeriesStats summarises one series over the bars held in memory
type MSeriesStats struct {
	Instrument    string  `json:"instrument"`
	Timeframe     string  `json:"timeframe"`
	Count         int     `json:"count"`
	FirstTime     int64   `json:"first_time"`
	LastTime      int64   `json:"last_time"`
	Open          float64 `json:"open"`
	Last          float64 `json:"last"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	ChangePct     float64 `json:"change_pct"`
	MeanClose     float64 `json:"mean_close"`
	StdClose      float64 `json:"std_close"`
	ZScore        float64 `json:"zscore"`
	TotalVolume   int64   `json:"total_volume"`
	VolumeAnomaly float64 `json:"volume_anomaly"`
}
