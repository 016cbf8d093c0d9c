package engine

import "math"

// RiskSize returns the whole number of units that risks fraction r of equity
// e on an entry at price p with its stop at s:
//
//	round(e * r / |p - s|)
//
// It returns 0 when the stop distance is zero or the inputs are not finite.
func RiskSize(e, r, p, s float64) int {
	perUnit := math.Abs(p - s)
	if !(perUnit > 0) || math.IsInf(perUnit, 0) {
		return 0
	}
	n := math.Round(e * r / perUnit)
	if !(n > 0) || math.IsInf(n, 0) {
		return 0
	}
	return int(n)
}
