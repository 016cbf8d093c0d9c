package util

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Crypto markets trade around the clock, so a year is 365 full days.
const cryptoYear = 365 * 24 * time.Hour

// ParseTimeframe converts a bar timeframe such as "15m", "1h", "4h" or "1d"
// to its duration.
func ParseTimeframe(tf string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(tf))
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid timeframe %q", tf)
}

// InferInterval returns the median spacing of ts, or zero when fewer than
// two timestamps are given.
func InferInterval(ts []time.Time) time.Duration {
	if len(ts) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		gaps = append(gaps, ts[i].Sub(ts[i-1]))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}

// PeriodsPerYear returns how many bars of the given interval fit in a
// 24/7 year.
func PeriodsPerYear(interval time.Duration) float64 {
	if interval <= 0 {
		return 0
	}
	return float64(cryptoYear) / float64(interval)
}

// Years expresses d as a fraction of a 24/7 year.
func Years(d time.Duration) float64 {
	return float64(d) / float64(cryptoYear)
}
