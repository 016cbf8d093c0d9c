package indicator

import (
	"fmt"

	"rbi/internal/indicator/ta"
	"rbi/internal/series"
)

// Func wraps a custom single-output computation with a declared warm-up.
func Func(name string, warmup int, fn func(s *series.Series) ([]float64, error)) Calc {
	return Calc{
		Name:   name,
		Warmup: warmup,
		Fn: func(s *series.Series) ([][]float64, error) {
			out, err := fn(s)
			if err != nil {
				return nil, err
			}
			return [][]float64{out}, nil
		},
	}
}

func onColumn(name, col string, warmup int, fn func(x []float64) []float64) Calc {
	return Func(name, warmup, func(s *series.Series) ([]float64, error) {
		x, err := s.Column(col)
		if err != nil {
			return nil, err
		}
		return fn(x), nil
	})
}

func hlc(s *series.Series) (high, low, close []float64, err error) {
	if high, err = s.Column(series.High); err != nil {
		return
	}
	if low, err = s.Column(series.Low); err != nil {
		return
	}
	close, err = s.Column(series.Close)
	return
}

// SMA of column col over n bars.
func SMA(col string, n int) Calc {
	return onColumn(fmt.Sprintf("SMA(%s,%d)", col, n), col, n-1, func(x []float64) []float64 { return ta.SMA(x, n) })
}

// EMA of column col over n bars.
func EMA(col string, n int) Calc {
	return onColumn(fmt.Sprintf("EMA(%s,%d)", col, n), col, n-1, func(x []float64) []float64 { return ta.EMA(x, n) })
}

// WMA of column col over n bars.
func WMA(col string, n int) Calc {
	return onColumn(fmt.Sprintf("WMA(%s,%d)", col, n), col, n-1, func(x []float64) []float64 { return ta.WMA(x, n) })
}

// StdDev of column col over n bars.
func StdDev(col string, n int) Calc {
	return onColumn(fmt.Sprintf("STDDEV(%s,%d)", col, n), col, n-1, func(x []float64) []float64 { return ta.StdDev(x, n) })
}

// Highest value of column col over n bars.
func Highest(col string, n int) Calc {
	return onColumn(fmt.Sprintf("MAX(%s,%d)", col, n), col, n-1, func(x []float64) []float64 { return ta.Highest(x, n) })
}

// Lowest value of column col over n bars.
func Lowest(col string, n int) Calc {
	return onColumn(fmt.Sprintf("MIN(%s,%d)", col, n), col, n-1, func(x []float64) []float64 { return ta.Lowest(x, n) })
}

// RSI of column col over n bars.
func RSI(col string, n int) Calc {
	return onColumn(fmt.Sprintf("RSI(%s,%d)", col, n), col, n, func(x []float64) []float64 { return ta.RSI(x, n) })
}

// ROC of column col over n bars.
func ROC(col string, n int) Calc {
	return onColumn(fmt.Sprintf("ROC(%s,%d)", col, n), col, n, func(x []float64) []float64 { return ta.ROC(x, n) })
}

// ATR over n bars.
func ATR(n int) Calc {
	return Func(fmt.Sprintf("ATR(%d)", n), n-1, func(s *series.Series) ([]float64, error) {
		h, l, c, err := hlc(s)
		if err != nil {
			return nil, err
		}
		return ta.ATR(h, l, c, n), nil
	})
}

// OBV is on-balance volume.
func OBV() Calc {
	return Func("OBV", 0, func(s *series.Series) ([]float64, error) {
		c, err := s.Column(series.Close)
		if err != nil {
			return nil, err
		}
		v, err := s.Column(series.Volume)
		if err != nil {
			return nil, err
		}
		return ta.OBV(c, v), nil
	})
}

// Bollinger bands of column col: outputs upper, middle, lower.
func Bollinger(col string, n int, k float64) Calc {
	return Calc{
		Name:    fmt.Sprintf("BB(%s,%d,%g)", col, n, k),
		Warmup:  n - 1,
		Outputs: []string{"upper", "middle", "lower"},
		Fn: func(s *series.Series) ([][]float64, error) {
			x, err := s.Column(col)
			if err != nil {
				return nil, err
			}
			u, m, l := ta.Bollinger(x, n, k)
			return [][]float64{u, m, l}, nil
		},
	}
}

// Keltner channel: outputs upper, middle, lower.
func Keltner(n int, mult float64) Calc {
	return Calc{
		Name:    fmt.Sprintf("KC(%d,%g)", n, mult),
		Warmup:  n - 1,
		Outputs: []string{"upper", "middle", "lower"},
		Fn: func(s *series.Series) ([][]float64, error) {
			h, l, c, err := hlc(s)
			if err != nil {
				return nil, err
			}
			up, mid, lo := ta.Keltner(h, l, c, n, mult)
			return [][]float64{up, mid, lo}, nil
		},
	}
}

// Donchian channel: outputs upper, middle, lower.
func Donchian(n int) Calc {
	return Calc{
		Name:    fmt.Sprintf("DC(%d)", n),
		Warmup:  n - 1,
		Outputs: []string{"upper", "middle", "lower"},
		Fn: func(s *series.Series) ([][]float64, error) {
			h, l, _, err := hlc(s)
			if err != nil {
				return nil, err
			}
			up, mid, lo := ta.Donchian(h, l, n)
			return [][]float64{up, mid, lo}, nil
		},
	}
}

// MACD of column col: outputs macd, signal, hist.
func MACD(col string, fast, slow, signal int) Calc {
	return Calc{
		Name:    fmt.Sprintf("MACD(%s,%d,%d,%d)", col, fast, slow, signal),
		Warmup:  slow + signal - 2,
		Outputs: []string{"macd", "signal", "hist"},
		Fn: func(s *series.Series) ([][]float64, error) {
			x, err := s.Column(col)
			if err != nil {
				return nil, err
			}
			line, sig, hist := ta.MACD(x, fast, slow, signal)
			return [][]float64{line, sig, hist}, nil
		},
	}
}

// Stochastic oscillator: outputs k, d.
func Stochastic(k, d int) Calc {
	return Calc{
		Name:    fmt.Sprintf("STOCH(%d,%d)", k, d),
		Warmup:  k + d - 2,
		Outputs: []string{"k", "d"},
		Fn: func(s *series.Series) ([][]float64, error) {
			h, l, c, err := hlc(s)
			if err != nil {
				return nil, err
			}
			pk, pd := ta.Stochastic(h, l, c, k, d)
			return [][]float64{pk, pd}, nil
		},
	}
}

// Vortex indicator: outputs plus, minus.
func Vortex(n int) Calc {
	return Calc{
		Name:    fmt.Sprintf("VORTEX(%d)", n),
		Warmup:  n,
		Outputs: []string{"plus", "minus"},
		Fn: func(s *series.Series) ([][]float64, error) {
			h, l, c, err := hlc(s)
			if err != nil {
				return nil, err
			}
			p, m := ta.Vortex(h, l, c, n)
			return [][]float64{p, m}, nil
		},
	}
}

// ADX with directional indicators: outputs adx, plus_di, minus_di.
func ADX(n int) Calc {
	return Calc{
		Name:    fmt.Sprintf("ADX(%d)", n),
		Warmup:  2*n - 1,
		Outputs: []string{"adx", "plus_di", "minus_di"},
		Fn: func(s *series.Series) ([][]float64, error) {
			h, l, c, err := hlc(s)
			if err != nil {
				return nil, err
			}
			adx, p, m := ta.ADX(h, l, c, n)
			return [][]float64{adx, p, m}, nil
		},
	}
}
