// Package ta is a pure indicator math library. Every function returns
// slices aligned to its input length, with NaN in the warm-up prefix where
// the rolling window has not filled. Leading NaNs in the input shift the
// warm-up accordingly.
package ta

import "math"

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// firstValid returns the index of the first non-NaN value, or len(x).
func firstValid(x []float64) int {
	for i, v := range x {
		if !math.IsNaN(v) {
			return i
		}
	}
	return len(x)
}

// SMA is the simple moving average over p values.
func SMA(x []float64, p int) []float64 {
	out := nans(len(x))
	if p <= 0 {
		return out
	}
	off := firstValid(x)
	var sum float64
	for i := off; i < len(x); i++ {
		sum += x[i]
		if i-off >= p {
			sum -= x[i-p]
		}
		if i-off >= p-1 {
			out[i] = sum / float64(p)
		}
	}
	return out
}

// EMA uses smoothing 2/(p+1), seeded with the SMA of the first p values.
func EMA(x []float64, p int) []float64 {
	return emaAlpha(x, p, 2.0/float64(p+1))
}

// RMA is Wilder's moving average (alpha 1/p), seeded with an SMA.
func RMA(x []float64, p int) []float64 {
	return emaAlpha(x, p, 1.0/float64(p))
}

func emaAlpha(x []float64, p int, k float64) []float64 {
	out := nans(len(x))
	if p <= 0 {
		return out
	}
	off := firstValid(x)
	if len(x)-off < p {
		return out
	}
	var seed float64
	for i := off; i < off+p; i++ {
		seed += x[i]
	}
	out[off+p-1] = seed / float64(p)
	for i := off + p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// WMA is the linearly weighted moving average over p values.
func WMA(x []float64, p int) []float64 {
	out := nans(len(x))
	if p <= 0 {
		return out
	}
	off := firstValid(x)
	denom := float64(p*(p+1)) / 2
	for i := off + p - 1; i < len(x); i++ {
		var s float64
		for j := 0; j < p; j++ {
			s += x[i-j] * float64(p-j)
		}
		out[i] = s / denom
	}
	return out
}

// StdDev is the rolling population standard deviation over p values.
func StdDev(x []float64, p int) []float64 {
	out := nans(len(x))
	if p <= 0 {
		return out
	}
	off := firstValid(x)
	var sum, sum2 float64
	for i := off; i < len(x); i++ {
		sum += x[i]
		sum2 += x[i] * x[i]
		if i-off >= p {
			sum -= x[i-p]
			sum2 -= x[i-p] * x[i-p]
		}
		if i-off >= p-1 {
			m := sum / float64(p)
			v := sum2/float64(p) - m*m
			if v < 0 {
				v = 0
			}
			out[i] = math.Sqrt(v)
		}
	}
	return out
}

// Highest is the rolling maximum over p values.
func Highest(x []float64, p int) []float64 {
	return rolling(x, p, math.Max)
}

// Lowest is the rolling minimum over p values.
func Lowest(x []float64, p int) []float64 {
	return rolling(x, p, math.Min)
}

func rolling(x []float64, p int, pick func(a, b float64) float64) []float64 {
	out := nans(len(x))
	if p <= 0 {
		return out
	}
	off := firstValid(x)
	for i := off + p - 1; i < len(x); i++ {
		v := x[i]
		for j := i - p + 1; j < i; j++ {
			v = pick(v, x[j])
		}
		out[i] = v
	}
	return out
}

// ROC is the p-period rate of change in percent.
func ROC(x []float64, p int) []float64 {
	out := nans(len(x))
	if p <= 0 {
		return out
	}
	for i := p; i < len(x); i++ {
		if x[i-p] != 0 && !math.IsNaN(x[i-p]) {
			out[i] = (x[i]/x[i-p] - 1) * 100
		}
	}
	return out
}

// RSI is Wilder's relative strength index. The first value is at index p.
func RSI(x []float64, p int) []float64 {
	out := nans(len(x))
	if p <= 0 || len(x) <= p {
		return out
	}
	var gain, loss float64
	for i := 1; i <= p; i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(p)
	loss /= float64(p)
	out[p] = rsiValue(gain, loss)
	for i := p + 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(p-1) + g) / float64(p)
		loss = (loss*float64(p-1) + l) / float64(p)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+gain/loss)
}

// OBV is on-balance volume.
func OBV(close, volume []float64) []float64 {
	out := make([]float64, len(close))
	for i := 1; i < len(close); i++ {
		switch {
		case close[i] > close[i-1]:
			out[i] = out[i-1] + volume[i]
		case close[i] < close[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}
