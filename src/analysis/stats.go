package analysis

import (
	"math"

	"trading-console/src/models"
)

// -----------------------------------------------------------------------------

// Summarise computes the statistics of an ascending candle series.
// ZScore places the last close against the mean of all closes; VolumeAnomaly compares
// the last bar's volume to the average of the ones before it.
func Summarise(instrument, tf string, candles []models.MCandle) models.MSeriesStats {
	st := models.MSeriesStats{Instrument: instrument, Timeframe: tf, Count: len(candles)}
	if len(candles) == 0 {
		return st
	}

	first, last := candles[0], candles[len(candles)-1]
	st.FirstTime, st.LastTime = first.Time, last.Time
	st.Open, st.Last = first.Open, last.Close
	st.High, st.Low = first.High, first.Low

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		st.TotalVolume += c.Volume
		st.High = math.Max(st.High, c.High)
		st.Low = math.Min(st.Low, c.Low)
	}

	st.ChangePct = CalculateChangePercent(st.Last, st.Open)
	st.MeanClose, st.StdClose = CalculateMeanStd(closes)
	st.ZScore = CalculateZScore(st.Last, st.MeanClose, st.StdClose)

	if len(candles) > 1 {
		prior := float64(st.TotalVolume-last.Volume) / float64(len(candles)-1)
		st.VolumeAnomaly = CalculateAnomalyRatio(float64(last.Volume), prior)
	}
	return st
}

// -----------------------------------------------------------------------------

// CalculateMeanStd computes mean and population standard deviation.
func CalculateMeanStd(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))

	if len(data) == 1 {
		return mean, 0
	}

	varianceSum := 0.0
	for _, v := range data {
		varianceSum += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(varianceSum / float64(len(data)))
}

// -----------------------------------------------------------------------------

// CalculateZScore calculates the standard score. Zero spread yields 0.
func CalculateZScore(value, mean, std float64) float64 {
	if std == 0 {
		return 0.0
	}
	return (value - mean) / std
}

// -----------------------------------------------------------------------------

// CalculateChangePercent returns the change from previous to current in percent.
func CalculateChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0.0
	}
	return (current - previous) / previous * 100
}

// -----------------------------------------------------------------------------

// CalculateAnomalyRatio compares a volume to its average. With no average, a silent bar is
// normal (1) and anything else reports its raw volume.
func CalculateAnomalyRatio(currentVol, avgVol float64) float64 {
	if avgVol <= 0 {
		if currentVol == 0 {
			return 1.0
		}
		return currentVol
	}
	return currentVol / avgVol
}
