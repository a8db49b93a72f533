package utils

import (
	"strings"
	"time"

	"trading-console/src/models"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers session questions for one instrument's exchange.
type TradingCalendar struct {
	MIC      string
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location

	// fallback session bounds, minutes after local midnight
	openMinute  int
	closeMinute int
}

// Board prefixes of "BOARD:TICKER" instrument ids
var boardMIC = map[string]string{
	"TQBR":   "xmos",
	"TQTF":   "xmos",
	"TQCB":   "xmos",
	"SPBFUT": "xmos",
	"SPBXM":  "xspb",
}

// Yahoo-style ticker suffixes
var suffixMIC = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".AS": "xams",
	".MI": "xmil",
	".ST": "xsto",
	".TO": "xtse",
	".T":  "xtks",
	".HK": "xhkg",
	".ME": "xmos",
}

// -----------------------------------------------------------------------------

// MICFor resolves the exchange code for an instrument id. Unknown ids map to xnys.
func MICFor(instrumentID string) string {
	if board, _, ok := strings.Cut(instrumentID, ":"); ok {
		if mic, found := boardMIC[strings.ToUpper(board)]; found {
			return mic
		}
	}
	for suffix, mic := range suffixMIC {
		if strings.HasSuffix(instrumentID, suffix) {
			return mic
		}
	}
	return "xnys"
}

// -----------------------------------------------------------------------------

func GetCalendar(instrumentID string) *TradingCalendar {
	mic := MICFor(instrumentID)

	if cal := calendar.GetCalendar(mic); cal != nil {
		return &TradingCalendar{MIC: mic, Calendar: cal, Timezone: cal.Loc}
	}

	// Not every exchange ships with the library; fall back to a plain weekday session
	tc := &TradingCalendar{MIC: mic, Fallback: true}
	switch mic {
	case "xmos", "xspb":
		tc.Timezone = loadLocation("Europe/Moscow")
		tc.openMinute, tc.closeMinute = 10*60, 18*60+50
	default:
		tc.Timezone = loadLocation("America/New_York")
		tc.openMinute, tc.closeMinute = 9*60+30, 16*60
	}
	return tc
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	date = date.In(tc.Timezone)

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	t = t.In(tc.Timezone)

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}
		minute := t.Hour()*60 + t.Minute()
		return minute >= tc.openMinute && minute < tc.closeMinute
	}
	return tc.Calendar.IsOpen(t)
}

// -----------------------------------------------------------------------------

// Session builds the session block reported in bot_status heartbeats
func (tc *TradingCalendar) Session(now time.Time) *models.MBotSession {
	local := now.In(tc.Timezone)
	return &models.MBotSession{
		Market:     strings.ToUpper(tc.MIC),
		Timezone:   tc.Timezone.String(),
		TradingDay: local.Format("2006-01-02"),
		IsOpen:     tc.IsOpenOnMinute(local),
	}
}
