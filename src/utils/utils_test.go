package utils

import (
	"testing"
	"time"

	"trading-console/src/logger"
)

func TestMICFor(t *testing.T) {
	tests := []struct {
		instrument string
		want       string
	}{
		{"TQBR:SBER", "xmos"},
		{"tqbr:GAZP", "xmos"},
		{"SPBFUT:SiZ5", "xmos"},
		{"VOD.L", "xlon"},
		{"AAPL", "xnys"},
		{"UNKNOWN:XYZ", "xnys"},
	}

	for _, tt := range tests {
		if got := MICFor(tt.instrument); got != tt.want {
			t.Errorf("MICFor(%q) = %s, want %s", tt.instrument, got, tt.want)
		}
	}
}

func TestTimeframeMinutes(t *testing.T) {
	tests := []struct {
		tf   string
		want int
	}{
		{"1m", 1},
		{"15m", 15},
		{"1h", 60},
		{"4H", 240},
		{"1d", 540},
		{"m", 0},
		{"0m", 0},
		{"5x", 0},
	}

	for _, tt := range tests {
		if got := TimeframeMinutes(tt.tf); got != tt.want {
			t.Errorf("TimeframeMinutes(%q) = %d, want %d", tt.tf, got, tt.want)
		}
	}
}

func TestCalculateMaxCandles(t *testing.T) {
	if got := CalculateMaxCandles(1, "1m"); got != 540 {
		t.Errorf("CalculateMaxCandles(1, 1m) = %d, want 540", got)
	}
	if got := CalculateMaxCandles(7, "1h"); got != 63 {
		t.Errorf("CalculateMaxCandles(7, 1h) = %d, want 63", got)
	}
	if got := CalculateMaxCandles(1, "bogus"); got != 540 {
		t.Errorf("CalculateMaxCandles(1, bogus) = %d, want 540", got)
	}
}

func TestFallbackSession(t *testing.T) {
	tc := &TradingCalendar{MIC: "xmos", Fallback: true, Timezone: time.UTC, openMinute: 600, closeMinute: 1130}

	// 2025-06-02 is a Monday
	open := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	closed := time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC)
	weekend := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !tc.IsOpenOnMinute(open) {
		t.Error("expected open at 12:00 on a weekday")
	}
	if tc.IsOpenOnMinute(closed) {
		t.Error("expected closed at 19:00")
	}
	if tc.IsOpenOnMinute(weekend) {
		t.Error("expected closed on Sunday")
	}

	s := tc.Session(open)
	if s.Market != "XMOS" || s.TradingDay != "2025-06-02" || !s.IsOpen || s.Timezone != "UTC" {
		t.Errorf("Session() = %+v", s)
	}
}

func TestMarketSchedulerSharesCalendars(t *testing.T) {
	ms := NewMarketScheduler([]string{"TQBR:SBER", "TQBR:GAZP", "AAPL"}, logger.NewNop())

	if ms.Calendars["TQBR:SBER"] != ms.Calendars["TQBR:GAZP"] {
		t.Error("instruments on one exchange should share a calendar")
	}
	if ms.Calendars["TQBR:SBER"] == ms.Calendars["AAPL"] {
		t.Error("instruments on different exchanges should not share a calendar")
	}
	if got := ms.Instruments(); len(got) != 3 || got[0] != "AAPL" {
		t.Errorf("Instruments() = %v", got)
	}
	if ms.Session("UNKNOWN", time.Now()) != nil {
		t.Error("Session() of an untracked instrument should be nil")
	}
}

func TestMarketSchedulerAnyMarketOpen(t *testing.T) {
	ms := NewMarketScheduler(nil, logger.NewNop())
	monday := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	if ms.AnyMarketOpen(monday) {
		t.Error("AnyMarketOpen() with nothing tracked should be false")
	}

	ms.Calendars = map[string]*TradingCalendar{
		"A": {MIC: "xmos", Fallback: true, Timezone: time.UTC, openMinute: 600, closeMinute: 660},
		"B": {MIC: "xnys", Fallback: true, Timezone: time.UTC, openMinute: 780, closeMinute: 900},
	}
	tests := []struct {
		at   time.Time
		want bool
	}{
		{monday.Add(-90 * time.Minute), true},
		{monday, false},
		{monday.Add(90 * time.Minute), true},
		{monday.Add(-24 * time.Hour), false},
	}
	for _, tt := range tests {
		if got := ms.AnyMarketOpen(tt.at); got != tt.want {
			t.Errorf("AnyMarketOpen(%s) = %v, want %v", tt.at.Format(time.Kitchen), got, tt.want)
		}
	}
	if s := ms.Session("B", monday.Add(90*time.Minute)); s == nil || !s.IsOpen {
		t.Errorf("Session(B) = %+v", s)
	}
}
