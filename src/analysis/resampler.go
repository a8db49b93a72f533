package analysis

import (
	"sort"
	"strconv"
	"strings"

	"trading-console/src/models"
	"trading-console/src/utils"
)

// -----------------------------------------------------------------------------

// WindowSeconds returns the bar length of timeframe tf in seconds. Days are calendar days here,
// unlike utils.TimeframeMinutes which counts session minutes. Returns 0 when unknown.
func WindowSeconds(tf string) int64 {
	tf = strings.TrimSpace(strings.ToLower(tf))
	if strings.HasSuffix(tf, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(tf, "d"))
		if err != nil || n <= 0 {
			return 0
		}
		return int64(n) * 86400
	}
	return int64(utils.TimeframeMinutes(tf)) * 60
}

// -----------------------------------------------------------------------------

// Resample folds ascending candles into aligned windows of windowSeconds.
// Each output bar opens at its window start: open of the first bar, close of the last,
// extreme high/low and summed volume. Empty windows produce no bar.
func Resample(candles []models.MCandle, windowSeconds int64) []models.MCandle {
	if len(candles) == 0 || windowSeconds <= 0 {
		return []models.MCandle{}
	}

	times := make([]int64, len(candles))
	for i, c := range candles {
		times[i] = c.Time
	}
	if !sort.SliceIsSorted(times, func(i, j int) bool { return times[i] < times[j] }) {
		sorted := make([]models.MCandle, len(candles))
		copy(sorted, candles)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
		candles = sorted
		for i, c := range candles {
			times[i] = c.Time
		}
	}

	var out []models.MCandle
	for i := 0; i < len(candles); {
		start, end := CalculateWindowBoundaries(times[i], windowSeconds)
		j := SearchSorted(times, end, "left")

		bar := models.MCandle{
			Time:  start,
			Open:  candles[i].Open,
			High:  candles[i].High,
			Low:   candles[i].Low,
			Close: candles[j-1].Close,
		}
		for _, c := range candles[i:j] {
			if c.High > bar.High {
				bar.High = c.High
			}
			if c.Low < bar.Low {
				bar.Low = c.Low
			}
			bar.Volume += c.Volume
		}
		out = append(out, bar)
		i = j
	}
	return out
}

// ResampleTo converts candles of timeframe from into timeframe to.
// It returns false when to is not a whole multiple of from.
func ResampleTo(candles []models.MCandle, from, to string) ([]models.MCandle, bool) {
	src, dst := WindowSeconds(from), WindowSeconds(to)
	if src <= 0 || dst <= 0 || dst < src || dst%src != 0 {
		return nil, false
	}
	if dst == src {
		out := make([]models.MCandle, len(candles))
		copy(out, candles)
		return out, true
	}
	return Resample(candles, dst), true
}

// -----------------------------------------------------------------------------

// SearchSorted finds the insertion index of value in ascending arr.
// "left" returns the first index with arr[i] >= value, anything else the first with arr[i] > value.
func SearchSorted(arr []int64, value int64, side string) int {
	if side == "left" {
		return sort.Search(len(arr), func(i int) bool {
			return arr[i] >= value
		})
	}
	return sort.Search(len(arr), func(i int) bool {
		return arr[i] > value
	})
}

// -----------------------------------------------------------------------------

// CalculateWindowBoundaries returns the aligned [start, end) window containing ts.
// Negative timestamps floor towards minus infinity.
func CalculateWindowBoundaries(ts int64, window int64) (int64, int64) {
	rem := ts % window
	if rem < 0 {
		rem += window
	}
	start := ts - rem
	return start, start + window
}
