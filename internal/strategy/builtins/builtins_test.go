package builtins

import (
	"math"
	"testing"
	"time"

	"rbi/internal/domain"
	"rbi/internal/engine"
	"rbi/internal/series"
	"rbi/internal/strategy"
)

// wave builds a trending sine series with real intrabar ranges.
func wave(t *testing.T, n int) *series.Series {
	t.Helper()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	prev := 100.0
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/15) + 0.01*float64(i) + 2*math.Sin(float64(i)/3)
		hi, lo := math.Max(prev, c)+0.5, math.Min(prev, c)-0.5
		bars[i] = domain.Bar{
			Timestamp: t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:      prev, High: hi, Low: lo, Close: c,
			Volume: 10 + float64(i%7),
		}
		prev = c
	}
	s, err := series.New(bars)
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}
	return s
}

func TestRegister(t *testing.T) {
	r := strategy.NewRegistry()
	Register(r)
	want := []string{"momentum-fusion", "sma-cross", "volatility-squeeze", "vortex"}
	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBuiltinsRun(t *testing.T) {
	r := strategy.NewRegistry()
	Register(r)
	s := wave(t, 800)
	eng, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	for _, name := range r.List() {
		t.Run(name, func(t *testing.T) {
			strat, params, err := r.New(name, nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res, err := eng.Run(s, strat, params)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(res.Equity) != s.Len() {
				t.Errorf("equity points = %d, want %d", len(res.Equity), s.Len())
			}
			if _, ok := res.Stats.Get(engine.StatTrades); !ok {
				t.Errorf("stats missing %q", engine.StatTrades)
			}
			for _, tr := range res.Trades {
				if tr.ExitBar < tr.EntryBar {
					t.Errorf("trade %d exits at %d before entry %d", tr.PositionID, tr.ExitBar, tr.EntryBar)
				}
			}
		})
	}
}

func TestSMACrossTradesBothSides(t *testing.T) {
	s := wave(t, 800)
	eng, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	r := strategy.NewRegistry()
	Register(r)
	strat, params, err := r.New("sma-cross", engine.Params{"fast": 5, "slow": 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := eng.Run(s, strat, params)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var longs, shorts int
	for _, tr := range res.Trades {
		switch tr.Side {
		case domain.SideLong:
			longs++
		case domain.SideShort:
			shorts++
		}
	}
	if longs == 0 || shorts == 0 {
		t.Fatalf("longs = %d, shorts = %d, want both > 0", longs, shorts)
	}
	// Without stops every exit but the final liquidation is a signal.
	for i, tr := range res.Trades[:len(res.Trades)-1] {
		if tr.ExitReason != domain.ExitSignal {
			t.Errorf("trade %d exit reason = %s, want %s", i, tr.ExitReason, domain.ExitSignal)
		}
	}
}

func TestSMACrossSameWindowsCollide(t *testing.T) {
	r := strategy.NewRegistry()
	Register(r)
	strat, params, err := r.New("sma-cross", engine.Params{"fast": 10, "slow": 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	eng, _ := engine.New(engine.DefaultConfig())
	if _, err := eng.Run(wave(t, 50), strat, params); err == nil {
		t.Error("Run succeeded with identical windows, want name collision")
	}
}
