package synthetic

import "math"

const (
	// CycleMs is the length of one synthetic price cycle (15 minutes)
	CycleMs = 900_000

	DefaultBasePrice = 270.0
	amplitude        = 5.0
	trendSpan        = 10.0
)

// PriceAt returns the synthetic price at epoch millisecond ms.
// The series repeats exactly every CycleMs.
func PriceAt(base float64, ms int64) float64 {
	offset := ((ms % CycleMs) + CycleMs) % CycleMs
	t := float64(offset) / 1000.0
	phase := t / (CycleMs / 1000.0)

	trend := trendSpan * phase
	if phase >= 0.5 {
		trend = trendSpan * (1 - phase)
	}

	return base +
		amplitude*math.Sin(2*math.Pi*phase) +
		trend +
		0.5*math.Sin(0.5*t) +
		0.3*math.Cos(1.3*t)
}

// secondOfCycle returns the whole second within the cycle for epoch second sec
func secondOfCycle(sec int64) int64 {
	const cycleSec = CycleMs / 1000
	return ((sec % cycleSec) + cycleSec) % cycleSec
}
