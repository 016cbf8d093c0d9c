package strategy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"rbi/internal/domain"
	"rbi/internal/engine"
	"rbi/internal/store"
)

// stubStrategy buys on the first bar and holds.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string                 { return s.name }
func (s *stubStrategy) Init(_ *engine.Context) error { return nil }
func (s *stubStrategy) Next(ctx *engine.Context) {
	if ctx.Index() == 0 {
		ctx.Buy(engine.OrderSpec{Size: ctx.ParamOr("size", 1)})
	}
}

func stubDef(name string) Definition {
	return Definition{
		Name:     name,
		Defaults: engine.Params{"size": 1},
		New:      func() engine.Strategy { return &stubStrategy{name: name} },
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(stubDef("test-strategy"))

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if got.Name != "test-strategy" {
		t.Errorf("Get returned Name = %q, want %q", got.Name, "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get returned true for unregistered strategy")
	}
	if _, _, err := r.New("nonexistent", nil); !errors.Is(err, domain.ErrUnknownStrategy) {
		t.Errorf("New err = %v, want ErrUnknownStrategy", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(stubDef("beta"))
	r.Register(stubDef("alpha"))

	names := r.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List = %v, want [alpha beta]", names)
	}
}

func TestRegistryNewParams(t *testing.T) {
	r := NewRegistry()
	r.Register(stubDef("stub"))

	strat, params, err := r.New("stub", engine.Params{"size": 3, ParamMaxBarsHeld: 4, ParamCooldownLosses: 2, ParamCooldownBars: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if params["size"] != 3 {
		t.Errorf("size = %v, want 3", params["size"])
	}
	d, ok := strat.(engine.PolicyDeclarer)
	if !ok {
		t.Fatal("strategy does not declare a policy")
	}
	want := engine.Policy{MaxBarsHeld: 4, CooldownLosses: 2, CooldownBars: 5}
	if got := d.Policy(); got != want {
		t.Errorf("Policy = %+v, want %+v", got, want)
	}

	// Fresh instance per call.
	other, _, _ := r.New("stub", nil)
	if other == strat {
		t.Error("New returned a shared instance")
	}
}

// declaringStrategy carries its own policy.
type declaringStrategy struct {
	stubStrategy
	policy engine.Policy
}

func (s *declaringStrategy) Policy() engine.Policy { return s.policy }

func TestRegistryNewMergesDeclaredPolicy(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{
		Name:     "declaring",
		Defaults: engine.Params{"size": 1},
		New: func() engine.Strategy {
			return &declaringStrategy{
				stubStrategy: stubStrategy{name: "declaring"},
				policy:       engine.Policy{MaxBarsHeld: 7, CooldownBars: 3},
			}
		},
	})

	strat, _, err := r.New("declaring", engine.Params{ParamCooldownBars: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := engine.Policy{MaxBarsHeld: 7, CooldownBars: 5}
	if got := strat.(engine.PolicyDeclarer).Policy(); got != want {
		t.Errorf("Policy = %+v, want %+v", got, want)
	}

	plain, _, err := r.New("declaring", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want = engine.Policy{MaxBarsHeld: 7, CooldownBars: 3}
	if got := plain.(engine.PolicyDeclarer).Policy(); got != want {
		t.Errorf("Policy without overrides = %+v, want %+v", got, want)
	}
}

func TestRegistryNewRejects(t *testing.T) {
	r := NewRegistry()
	r.Register(stubDef("stub"))

	tests := []struct {
		name      string
		overrides engine.Params
	}{
		{"unknown param", engine.Params{"sizee": 1}},
		{"fractional policy", engine.Params{ParamMaxBarsHeld: 2.5}},
		{"negative policy", engine.Params{ParamCooldownBars: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := r.New("stub", tt.overrides); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestBacktesterRun(t *testing.T) {
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	ctx := context.Background()

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 101, 102, 103, 104}
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Timestamp: t0.Add(time.Duration(i) * 15 * time.Minute), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	if err := ps.WriteBars(ctx, "BTC-USD", "15m", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	cfg := engine.DefaultConfig()
	cfg.CommissionRate = 0
	eng, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	r := NewRegistry()
	r.Register(stubDef("stub"))
	bt := NewBacktester(ps, r, eng, nil)

	res, err := bt.Run(ctx, "stub", engine.Params{"size": 2}, "BTC-USD", "15m", t0, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Buy at bar 1's open (101), force-closed at the last close (104).
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.EntryPrice != 101 || tr.ExitPrice != 104 || tr.Units != 2 {
		t.Errorf("trade = %+v", tr)
	}
	if math.Abs(tr.PnL-6) > 1e-9 {
		t.Errorf("PnL = %v, want 6", tr.PnL)
	}

	if _, err := bt.Run(ctx, "missing", nil, "BTC-USD", "15m", t0, t0.Add(time.Hour)); !errors.Is(err, domain.ErrUnknownStrategy) {
		t.Errorf("unknown strategy err = %v, want ErrUnknownStrategy", err)
	}
	if _, err := bt.Run(ctx, "stub", nil, "ETH-USD", "15m", t0, t0.Add(time.Hour)); !errors.Is(err, domain.ErrInvalidBar) {
		t.Errorf("empty range err = %v, want ErrInvalidBar", err)
	}
}
