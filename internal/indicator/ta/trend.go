package ta

import "math"

// MACD returns the MACD line, its signal line and the histogram.
func MACD(x []float64, fast, slow, signal int) (line, sig, hist []float64) {
	f := EMA(x, fast)
	s := EMA(x, slow)
	line = make([]float64, len(x))
	for i := range x {
		line[i] = f[i] - s[i]
	}
	sig = EMA(line, signal)
	hist = make([]float64, len(x))
	for i := range x {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// Stochastic returns %K over k bars and its d-bar SMA %D.
func Stochastic(high, low, close []float64, k, d int) (pctK, pctD []float64) {
	hh := Highest(high, k)
	ll := Lowest(low, k)
	pctK = nans(len(close))
	for i := range close {
		if math.IsNaN(hh[i]) {
			continue
		}
		if rng := hh[i] - ll[i]; rng > 0 {
			pctK[i] = 100 * (close[i] - ll[i]) / rng
		} else {
			pctK[i] = 50
		}
	}
	pctD = SMA(pctK, d)
	return pctK, pctD
}

// Vortex returns VI+ and VI- over p bars. The first value is at index p.
func Vortex(high, low, close []float64, p int) (plus, minus []float64) {
	n := len(close)
	plus, minus = nans(n), nans(n)
	if p <= 0 || n <= p {
		return plus, minus
	}
	tr := TrueRange(high, low, close)
	vmp := make([]float64, n)
	vmm := make([]float64, n)
	for i := 1; i < n; i++ {
		vmp[i] = math.Abs(high[i] - low[i-1])
		vmm[i] = math.Abs(low[i] - high[i-1])
	}
	for i := p; i < n; i++ {
		var sp, sm, st float64
		for j := i - p + 1; j <= i; j++ {
			sp += vmp[j]
			sm += vmm[j]
			st += tr[j]
		}
		if st > 0 {
			plus[i] = sp / st
			minus[i] = sm / st
		}
	}
	return plus, minus
}

// ADX returns Wilder's average directional index with +DI and -DI. +DI and
// -DI start at index p, ADX at index 2p-1.
func ADX(high, low, close []float64, p int) (adx, plusDI, minusDI []float64) {
	n := len(close)
	adx, plusDI, minusDI = nans(n), nans(n), nans(n)
	if p <= 0 || n <= 2*p-1 {
		return adx, plusDI, minusDI
	}
	tr := TrueRange(high, low, close)
	pdm := make([]float64, n)
	mdm := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			pdm[i] = up
		}
		if down > up && down > 0 {
			mdm[i] = down
		}
	}

	var str, spdm, smdm float64
	for i := 1; i <= p; i++ {
		str += tr[i]
		spdm += pdm[i]
		smdm += mdm[i]
	}
	dx := nans(n)
	for i := p; i < n; i++ {
		if i > p {
			str = str - str/float64(p) + tr[i]
			spdm = spdm - spdm/float64(p) + pdm[i]
			smdm = smdm - smdm/float64(p) + mdm[i]
		}
		if str == 0 {
			plusDI[i], minusDI[i], dx[i] = 0, 0, 0
			continue
		}
		plusDI[i] = 100 * spdm / str
		minusDI[i] = 100 * smdm / str
		if sum := plusDI[i] + minusDI[i]; sum > 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		} else {
			dx[i] = 0
		}
	}
	return RMA(dx, p), plusDI, minusDI
}
