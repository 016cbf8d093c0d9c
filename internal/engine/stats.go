package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"rbi/internal/domain"
	"rbi/internal/series"
	"rbi/internal/util"
)

// Metric names.
const (
	StatStart            = "Start"
	StatEnd              = "End"
	StatDuration         = "Duration"
	StatExposure         = "Exposure Time [%]"
	StatEquityFinal      = "Equity Final [$]"
	StatEquityPeak       = "Equity Peak [$]"
	StatReturn           = "Return [%]"
	StatBuyHold          = "Buy & Hold Return [%]"
	StatReturnAnn        = "Return (Ann.) [%]"
	StatVolatilityAnn    = "Volatility (Ann.) [%]"
	StatCAGR             = "CAGR [%]"
	StatSharpe           = "Sharpe Ratio"
	StatSortino          = "Sortino Ratio"
	StatCalmar           = "Calmar Ratio"
	StatMaxDrawdown      = "Max. Drawdown [%]"
	StatAvgDrawdown      = "Avg. Drawdown [%]"
	StatMaxDDDuration    = "Max. Drawdown Duration"
	StatTrades           = "# Trades"
	StatWinRate          = "Win Rate [%]"
	StatBestTrade        = "Best Trade [%]"
	StatWorstTrade       = "Worst Trade [%]"
	StatAvgTrade         = "Avg. Trade [%]"
	StatMaxTradeDuration = "Max. Trade Duration"
	StatAvgTradeDuration = "Avg. Trade Duration"
	StatAvgTradeBars     = "Avg. Trade Duration [bars]"
	StatProfitFactor     = "Profit Factor"
	StatExpectancy       = "Expectancy [%]"
	StatSQN              = "SQN"
	StatCommissions      = "Commissions [$]"
)

// Stat is one named metric. Value is a float64, an int, a time.Time or a
// time.Duration.
type Stat struct {
	Name  string
	Value any
}

// Stats is the ordered statistics record of a run.
type Stats struct {
	entries []Stat
	index   map[string]int
}

func (s *Stats) add(name string, v any) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.index[name] = len(s.entries)
	s.entries = append(s.entries, Stat{Name: name, Value: v})
}

// Entries returns the metrics in report order.
func (s Stats) Entries() []Stat { return append([]Stat(nil), s.entries...) }

// Get looks a metric up by name.
func (s Stats) Get(name string) (any, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.entries[i].Value, true
}

// Float returns a numeric metric as float64, NaN when missing or not numeric.
func (s Stats) Float(name string) float64 {
	v, _ := s.Get(name)
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	return math.NaN()
}

// String renders the metrics as an aligned two-column table.
func (s Stats) String() string {
	width := 0
	for _, e := range s.entries {
		width = max(width, len(e.Name))
	}
	var b strings.Builder
	for _, e := range s.entries {
		fmt.Fprintf(&b, "%-*s  %s\n", width, e.Name, formatStat(e.Value))
	}
	return b.String()
}

func formatStat(v any) string {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return "NaN"
		}
		return fmt.Sprintf("%.4f", x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	case time.Duration:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func computeStats(s *series.Series, cash float64, trades []domain.ClosedTrade, equity []domain.EquitySnapshot) Stats {
	var st Stats
	n := s.Len()
	start, end := s.Time(0), s.Time(n-1)
	st.add(StatStart, start)
	st.add(StatEnd, end)
	st.add(StatDuration, end.Sub(start))

	exposed := make([]bool, n)
	for _, tr := range trades {
		for i := tr.EntryBar; i <= tr.ExitBar && i < n; i++ {
			exposed[i] = true
		}
	}
	cnt := 0
	for _, x := range exposed {
		if x {
			cnt++
		}
	}
	st.add(StatExposure, 100*float64(cnt)/float64(n))

	eq := make([]float64, len(equity))
	for i, e := range equity {
		eq[i] = e.Equity
	}
	final, peak := cash, cash
	if len(eq) > 0 {
		final = eq[len(eq)-1]
	}
	for _, v := range eq {
		peak = math.Max(peak, v)
	}
	st.add(StatEquityFinal, final)
	st.add(StatEquityPeak, peak)
	totalRet := final/cash - 1
	st.add(StatReturn, 100*totalRet)

	closes, _ := s.Column(series.Close)
	st.add(StatBuyHold, 100*(closes[n-1]/closes[0]-1))

	ppy := util.PeriodsPerYear(util.InferInterval(timesOf(s)))
	rets := make([]float64, 0, len(eq))
	prev := cash
	for _, v := range eq {
		rets = append(rets, v/prev-1)
		prev = v
	}
	annRet, annVol, downside := math.NaN(), math.NaN(), math.NaN()
	if ppy > 0 && len(rets) > 0 {
		annRet = math.Pow(1+totalRet, ppy/float64(len(rets))) - 1
		annVol = stddev(rets) * math.Sqrt(ppy)
		downside = downsideDev(rets) * math.Sqrt(ppy)
	}
	st.add(StatReturnAnn, 100*annRet)
	st.add(StatVolatilityAnn, 100*annVol)
	cagr := math.NaN()
	if years := util.Years(end.Sub(start)); years > 0 {
		cagr = math.Pow(final/cash, 1/years) - 1
	}
	st.add(StatCAGR, 100*cagr)
	st.add(StatSharpe, ratio(annRet, annVol))
	st.add(StatSortino, ratio(annRet, downside))

	maxDD, avgDD := drawdowns(cash, eq)
	st.add(StatCalmar, ratio(annRet, -maxDD))
	st.add(StatMaxDrawdown, 100*maxDD)
	st.add(StatAvgDrawdown, 100*avgDD)
	st.add(StatMaxDDDuration, longestDrawdown(cash, equity))

	st.add(StatTrades, len(trades))
	tradeStats(&st, trades)
	return st
}

func tradeStats(st *Stats, trades []domain.ClosedTrade) {
	nan := math.NaN()
	if len(trades) == 0 {
		for _, k := range []string{StatWinRate, StatBestTrade, StatWorstTrade, StatAvgTrade} {
			st.add(k, nan)
		}
		st.add(StatMaxTradeDuration, time.Duration(0))
		st.add(StatAvgTradeDuration, time.Duration(0))
		for _, k := range []string{StatAvgTradeBars, StatProfitFactor, StatExpectancy, StatSQN} {
			st.add(k, nan)
		}
		st.add(StatCommissions, 0.0)
		return
	}

	var wins, grossWin, grossLoss, sumPct, logSum, comm float64
	best, worst := math.Inf(-1), math.Inf(1)
	var maxDur, sumDur time.Duration
	var sumBars int
	pnls := make([]float64, len(trades))
	for i, tr := range trades {
		pnls[i] = tr.PnL
		if tr.PnL > 0 {
			wins++
			grossWin += tr.PnL
		} else {
			grossLoss -= tr.PnL
		}
		best = math.Max(best, tr.PnLPct)
		worst = math.Min(worst, tr.PnLPct)
		sumPct += tr.PnLPct
		logSum += math.Log1p(tr.PnLPct)
		d := tr.ExitTime.Sub(tr.EntryTime)
		maxDur = max(maxDur, d)
		sumDur += d
		sumBars += tr.DurationBars
		comm += tr.Commission
	}
	k := float64(len(trades))
	st.add(StatWinRate, 100*wins/k)
	st.add(StatBestTrade, 100*best)
	st.add(StatWorstTrade, 100*worst)
	st.add(StatAvgTrade, 100*(math.Exp(logSum/k)-1))
	st.add(StatMaxTradeDuration, maxDur)
	st.add(StatAvgTradeDuration, sumDur/time.Duration(len(trades)))
	st.add(StatAvgTradeBars, float64(sumBars)/k)
	pf := math.NaN()
	if grossLoss > 0 {
		pf = grossWin / grossLoss
	}
	st.add(StatProfitFactor, pf)
	st.add(StatExpectancy, 100*sumPct/k)
	sqn := math.NaN()
	if sd := stddev(pnls); sd > 0 {
		sqn = math.Sqrt(k) * mean(pnls) / sd
	}
	st.add(StatSQN, sqn)
	st.add(StatCommissions, comm)
}

// drawdowns returns the maximum drawdown (a non-positive fraction) and the
// mean trough of each drawdown episode.
func drawdowns(start float64, eq []float64) (maxDD, avgDD float64) {
	peak := start
	var troughs []float64
	trough := 0.0
	for _, v := range eq {
		if v >= peak {
			if trough < 0 {
				troughs = append(troughs, trough)
			}
			peak, trough = v, 0
			continue
		}
		dd := v/peak - 1
		trough = math.Min(trough, dd)
		maxDD = math.Min(maxDD, dd)
	}
	if trough < 0 {
		troughs = append(troughs, trough)
	}
	if len(troughs) > 0 {
		avgDD = mean(troughs)
	}
	return maxDD, avgDD
}

// longestDrawdown measures the longest time spent below a previous peak.
func longestDrawdown(start float64, equity []domain.EquitySnapshot) time.Duration {
	if len(equity) == 0 {
		return 0
	}
	peak := start
	since := equity[0].Time
	var longest time.Duration
	under := false
	for _, e := range equity {
		if e.Equity >= peak {
			if under {
				longest = max(longest, e.Time.Sub(since))
			}
			peak, since, under = e.Equity, e.Time, false
			continue
		}
		under = true
	}
	if under {
		longest = max(longest, equity[len(equity)-1].Time.Sub(since))
	}
	return longest
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

func stddev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	m := mean(x)
	var ss float64
	for _, v := range x {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(x)-1))
}

func downsideDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var ss float64
	for _, v := range x {
		if v < 0 {
			ss += v * v
		}
	}
	return math.Sqrt(ss / float64(len(x)))
}

func ratio(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) || b == 0 {
		return math.NaN()
	}
	return a / b
}
