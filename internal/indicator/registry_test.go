package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"rbi/internal/domain"
	"rbi/internal/series"
)

func mkSeries(t *testing.T, closes ...float64) *series.Series {
	t.Helper()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Timestamp: t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c, High: c + 1, Low: c - 1, Close: c, Volume: 10,
		}
	}
	s, err := series.New(bars)
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}
	return s
}

func TestRegisterMasksWarmup(t *testing.T) {
	s := mkSeries(t, 1, 2, 3, 4, 5)
	r := NewRegistry(s)
	h, err := r.Register(SMA(series.Close, 3))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h.Name() != "SMA(Close,3)" {
		t.Errorf("Name() = %q", h.Name())
	}
	for i := 0; i < 2; i++ {
		if !math.IsNaN(h.At(i)) {
			t.Errorf("At(%d) = %v, want NaN", i, h.At(i))
		}
	}
	if h.At(2) != 2 || h.At(4) != 4 {
		t.Errorf("At(2), At(4) = %v, %v, want 2, 4", h.At(2), h.At(4))
	}
}

func TestRegisterMasksEvenWhenCalcFillsWarmup(t *testing.T) {
	s := mkSeries(t, 1, 2, 3, 4)
	r := NewRegistry(s)
	c := Func("ones", 2, func(s *series.Series) ([]float64, error) {
		return []float64{1, 1, 1, 1}, nil
	})
	h, err := r.Register(c)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !math.IsNaN(h.At(1)) || h.At(2) != 1 {
		t.Errorf("At(1), At(2) = %v, %v, want NaN, 1", h.At(1), h.At(2))
	}
}

func TestRegisterShapeErrors(t *testing.T) {
	s := mkSeries(t, 1, 2, 3)
	r := NewRegistry(s)
	short := Func("short", 0, func(*series.Series) ([]float64, error) { return []float64{1, 2}, nil })
	if _, err := r.Register(short); !errors.Is(err, domain.ErrInvalidIndicatorShape) {
		t.Errorf("short output err = %v, want ErrInvalidIndicatorShape", err)
	}

	twoForOne := Calc{Name: "bad", Fn: func(*series.Series) ([][]float64, error) {
		return [][]float64{{1, 2, 3}, {1, 2, 3}}, nil
	}}
	if _, err := r.Register(twoForOne); !errors.Is(err, domain.ErrInvalidIndicatorShape) {
		t.Errorf("output count err = %v, want ErrInvalidIndicatorShape", err)
	}

	if _, err := r.Register(Bollinger(series.Close, 2, 2)); !errors.Is(err, domain.ErrInvalidIndicatorShape) {
		t.Errorf("multi-output without Select err = %v, want ErrInvalidIndicatorShape", err)
	}
	if _, err := r.Register(Bollinger(series.Close, 2, 2), Select("nope")); !errors.Is(err, domain.ErrInvalidIndicatorShape) {
		t.Errorf("bad Select err = %v, want ErrInvalidIndicatorShape", err)
	}
}

func TestRegisterNameCollision(t *testing.T) {
	s := mkSeries(t, 1, 2, 3)
	r := NewRegistry(s)
	if _, err := r.Register(SMA(series.Close, 2)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Register(SMA(series.Close, 2)); !errors.Is(err, domain.ErrNameCollision) {
		t.Errorf("duplicate err = %v, want ErrNameCollision", err)
	}
	if _, err := r.Register(SMA(series.Close, 2), Named("fast")); err != nil {
		t.Errorf("renamed Register: %v", err)
	}
	names := r.Names()
	if len(names) != 2 || names[1] != "fast" {
		t.Errorf("Names() = %v", names)
	}
}

func TestSelectAndRegisterAll(t *testing.T) {
	s := mkSeries(t, 1, 2, 3, 4, 5)
	r := NewRegistry(s)
	mid, err := r.Register(Bollinger(series.Close, 3, 2), Named("bb"), Select("middle"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if mid.Name() != "bb.middle" || mid.At(4) != 4 {
		t.Errorf("bb.middle = %q %v", mid.Name(), mid.At(4))
	}
	hs, err := r.RegisterAll(Donchian(2), Named("dc"))
	if err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if len(hs) != 3 || hs[0].Name() != "dc.upper" || hs[2].Name() != "dc.lower" {
		t.Fatalf("RegisterAll handles = %v", hs)
	}
	if _, ok := r.Get("dc.middle"); !ok {
		t.Error("Get(dc.middle) missing")
	}
}

func TestUnknownColumn(t *testing.T) {
	s := mkSeries(t, 1, 2, 3)
	r := NewRegistry(s)
	if _, err := r.Register(SMA("funding_rate", 2)); !errors.Is(err, domain.ErrUnknownColumn) {
		t.Errorf("err = %v, want ErrUnknownColumn", err)
	}
	if _, err := r.Column("nope"); !errors.Is(err, domain.ErrUnknownColumn) {
		t.Errorf("Column err = %v, want ErrUnknownColumn", err)
	}
}

func TestFrozenRegistry(t *testing.T) {
	s := mkSeries(t, 1, 2, 3)
	r := NewRegistry(s)
	r.Freeze()
	if _, err := r.Register(SMA(series.Close, 2)); err == nil {
		t.Error("Register after Freeze succeeded")
	}
}

func TestRegistryDoesNotMutateSeries(t *testing.T) {
	s := mkSeries(t, 1, 2, 3, 4)
	before := s.Fingerprint()
	r := NewRegistry(s)
	if _, err := r.Register(EMA(series.Close, 3)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Column(series.Close); err != nil {
		t.Fatal(err)
	}
	if s.Fingerprint() != before {
		t.Error("series changed after registration")
	}
}

func TestViewCausality(t *testing.T) {
	s := mkSeries(t, 1, 2, 3, 4, 5)
	r := NewRegistry(s)
	h, err := r.Column(series.Close)
	if err != nil {
		t.Fatal(err)
	}
	v := h.View(2)
	if v.Now() != 3 || v.Ago(1) != 2 || v.At(0) != 1 {
		t.Errorf("Now, Ago(1), At(0) = %v, %v, %v", v.Now(), v.Ago(1), v.At(0))
	}
	if !math.IsNaN(v.Ago(5)) {
		t.Errorf("Ago(5) = %v, want NaN", v.Ago(5))
	}
	if w := v.Window(10); len(w) != 3 || w[2] != 3 {
		t.Errorf("Window(10) = %v", w)
	}

	defer func() {
		rec := recover()
		ce, ok := rec.(*CausalError)
		if !ok {
			t.Fatalf("recover() = %v, want *CausalError", rec)
		}
		if !errors.Is(ce, domain.ErrCausalViolation) {
			t.Error("CausalError does not unwrap to ErrCausalViolation")
		}
		if ce.Index != 3 || ce.Current != 2 {
			t.Errorf("CausalError = %+v", ce)
		}
	}()
	_ = v.At(3)
	t.Error("At(3) did not panic")
}

func TestViewWindowIsACopy(t *testing.T) {
	s := mkSeries(t, 1, 2, 3, 4, 5)
	r := NewRegistry(s)
	h, err := r.Register(SMA(series.Close, 2))
	if err != nil {
		t.Fatal(err)
	}
	closes, err := r.Column(series.Close)
	if err != nil {
		t.Fatal(err)
	}

	w := h.View(4).Window(2)
	w[0] = math.Inf(1)
	c := closes.View(4).Window(1)
	c[0] = -1

	if got := h.At(3); got != 3.5 {
		t.Errorf("SMA At(3) after writing a window = %v, want 3.5", got)
	}
	if got := closes.At(4); got != 5 {
		t.Errorf("Close At(4) after writing a window = %v, want 5", got)
	}
	if got := s.Bar(4).Close; got != 5 {
		t.Errorf("series Close[4] = %v, want 5", got)
	}
	if w := h.View(0).Window(0); len(w) != 0 {
		t.Errorf("Window(0) = %v, want empty", w)
	}
}
