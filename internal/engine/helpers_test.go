package engine

import (
	"testing"
	"time"

	"rbi/internal/domain"
	"rbi/internal/series"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// ohlcRow is {open, high, low, close}.
type ohlcRow [4]float64

func mkSeries(t *testing.T, rows ...ohlcRow) *series.Series {
	t.Helper()
	bars := make([]domain.Bar, len(rows))
	for i, r := range rows {
		bars[i] = domain.Bar{
			Timestamp: t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:      r[0],
			High:      r[1],
			Low:       r[2],
			Close:     r[3],
			Volume:    1,
		}
	}
	s, err := series.New(bars)
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}
	return s
}

// flat builds bars with open = high = low = close.
func flat(prices ...float64) []ohlcRow {
	rows := make([]ohlcRow, len(prices))
	for i, p := range prices {
		rows[i] = ohlcRow{p, p, p, p}
	}
	return rows
}

type scripted struct {
	init   func(ctx *Context) error
	next   func(ctx *Context)
	policy Policy
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Init(ctx *Context) error {
	if s.init != nil {
		return s.init(ctx)
	}
	return nil
}

func (s *scripted) Next(ctx *Context) {
	if s.next != nil {
		s.next(ctx)
	}
}

func (s *scripted) Policy() Policy { return s.policy }

// at runs fn only on bar i.
func at(i int, fn func(ctx *Context)) func(ctx *Context) {
	return func(ctx *Context) {
		if ctx.Index() == i {
			fn(ctx)
		}
	}
}

func noCommission() Config {
	cfg := DefaultConfig()
	cfg.CommissionRate = 0
	return cfg
}

func mustRun(t *testing.T, cfg Config, s *series.Series, strat Strategy, opts ...Option) *Result {
	t.Helper()
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := e.Run(s, strat, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func approx(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}
