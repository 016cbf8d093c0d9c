package ta

import "math"

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|); the first
// bar uses high-low.
func TrueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(close))
	for i := range close {
		tr := high[i] - low[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(high[i]-close[i-1]))
			tr = math.Max(tr, math.Abs(low[i]-close[i-1]))
		}
		out[i] = tr
	}
	return out
}

// ATR is Wilder's average true range. The first value is at index p-1.
func ATR(high, low, close []float64, p int) []float64 {
	return RMA(TrueRange(high, low, close), p)
}

// Bollinger returns upper, middle and lower bands at k standard deviations.
func Bollinger(x []float64, p int, k float64) (upper, middle, lower []float64) {
	middle = SMA(x, p)
	sd := StdDev(x, p)
	upper = make([]float64, len(x))
	lower = make([]float64, len(x))
	for i := range x {
		upper[i] = middle[i] + k*sd[i]
		lower[i] = middle[i] - k*sd[i]
	}
	return upper, middle, lower
}

// Keltner returns an EMA midline with bands at mult ATRs.
func Keltner(high, low, close []float64, p int, mult float64) (upper, middle, lower []float64) {
	middle = EMA(close, p)
	atr := ATR(high, low, close, p)
	upper = make([]float64, len(close))
	lower = make([]float64, len(close))
	for i := range close {
		upper[i] = middle[i] + mult*atr[i]
		lower[i] = middle[i] - mult*atr[i]
	}
	return upper, middle, lower
}

// Donchian returns the rolling high, midpoint and rolling low.
func Donchian(high, low []float64, p int) (upper, middle, lower []float64) {
	upper = Highest(high, p)
	lower = Lowest(low, p)
	middle = make([]float64, len(high))
	for i := range high {
		middle[i] = (upper[i] + lower[i]) / 2
	}
	return upper, middle, lower
}
