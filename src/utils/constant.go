package utils

import (
	"math"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------

// History kept when rehydrating series from storage.
// A MOEX main session is ~9 hours, so about 540 one-minute bars per day.
const (
	DefaultRetentionDays = 7
	minutesPerSession    = 540
)

// -----------------------------------------------------------------------------

// CalculateMaxCandles returns how many bars of timeframe tf cover the given number of sessions.
// Unparseable timeframes are treated as 1m.
func CalculateMaxCandles(days int, tf string) int {
	minutes := TimeframeMinutes(tf)
	if minutes <= 0 {
		minutes = 1
	}
	return int(math.Ceil(float64(days*minutesPerSession) / float64(minutes)))
}

// -----------------------------------------------------------------------------

// TimeframeMinutes parses "1m", "15m", "1h" or "1d" into minutes. Returns 0 when unknown.
func TimeframeMinutes(tf string) int {
	tf = strings.TrimSpace(strings.ToLower(tf))
	if len(tf) < 2 {
		return 0
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0
	}
	switch tf[len(tf)-1] {
	case 'm':
		return n
	case 'h':
		return n * 60
	case 'd':
		return n * minutesPerSession
	}
	return 0
}
