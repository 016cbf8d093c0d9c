package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"rbi/internal/domain"
)

func testBars() []domain.Bar {
	t0 := time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC)
	return []domain.Bar{
		{Timestamp: t0, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 12, Aux: map[string]float64{"funding": 0.01}},
		{Timestamp: t0.Add(15 * time.Minute), Open: 100.5, High: 102, Low: 100, Close: 101.5, Volume: 8},
		{Timestamp: t0.Add(30 * time.Minute), Open: 101.5, High: 103, Low: 101, Close: 102, Volume: 9, Aux: map[string]float64{"funding": 0.02}},
	}
}

func assertBarsEqual(t *testing.T, got, want []domain.Bar) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if !g.Timestamp.Equal(w.Timestamp) {
			t.Errorf("bar %d timestamp = %v, want %v", i, g.Timestamp, w.Timestamp)
		}
		if g.Open != w.Open || g.High != w.High || g.Low != w.Low || g.Close != w.Close || g.Volume != w.Volume {
			t.Errorf("bar %d = %+v, want %+v", i, g, w)
		}
		if len(g.Aux) != len(w.Aux) {
			t.Errorf("bar %d aux = %v, want %v", i, g.Aux, w.Aux)
			continue
		}
		for k, v := range w.Aux {
			if g.Aux[k] != v {
				t.Errorf("bar %d aux[%s] = %v, want %v", i, k, g.Aux[k], v)
			}
		}
	}
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")
	got := ps.barPath("btc-usd", "15M", 2024)
	want := filepath.Join("/data", "BTC-USD", "15m", "2024.parquet")
	if got != want {
		t.Errorf("barPath = %s, want %s", got, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()
	bars := testBars()

	if err := ps.WriteBars(ctx, "BTC-USD", "15m", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	// The batch straddles a year boundary.
	for _, y := range []int{2024, 2025} {
		if _, err := readParquetFile[BarRecord](ps.barPath("BTC-USD", "15m", y)); err != nil {
			t.Errorf("year file %d: %v", y, err)
		}
	}

	got, err := ps.ReadBars(ctx, "BTC-USD", "15m", bars[0].Timestamp, bars[2].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	assertBarsEqual(t, got, bars)

	got, err = ps.ReadBars(ctx, "BTC-USD", "15m", bars[1].Timestamp, bars[1].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	assertBarsEqual(t, got, bars[1:2])
}

func TestParquetStoreMerge(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()
	bars := testBars()

	if err := ps.WriteBars(ctx, "BTC-USD", "15m", bars[:2]); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	updated := bars[1]
	updated.Close = 101.75
	if err := ps.WriteBars(ctx, "BTC-USD", "15m", []domain.Bar{updated, bars[2]}); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "BTC-USD", "15m", bars[0].Timestamp, bars[2].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	want := []domain.Bar{bars[0], updated, bars[2]}
	assertBarsEqual(t, got, want)
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	syms, err := ps.ListSymbols(ctx)
	if err != nil || len(syms) != 0 {
		t.Fatalf("empty store: %v, %v", syms, err)
	}
	for _, sym := range []string{"ETH-USD", "BTC-USD"} {
		if err := ps.WriteBars(ctx, sym, "15m", testBars()[:1]); err != nil {
			t.Fatalf("WriteBars: %v", err)
		}
	}
	syms, err = ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(syms) != 2 || syms[0] != "BTC-USD" || syms[1] != "ETH-USD" {
		t.Errorf("ListSymbols = %v", syms)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "bars.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	bars := testBars()

	if err := s.WriteBars(ctx, "btc-usd", "15m", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	// Rewriting replaces the bar and its aux values.
	rewritten := bars[0]
	rewritten.Aux = map[string]float64{"funding": 0.05}
	if err := s.WriteBars(ctx, "BTC-USD", "15m", []domain.Bar{rewritten}); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "BTC-USD", "15m", bars[0].Timestamp, bars[2].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	assertBarsEqual(t, got, []domain.Bar{rewritten, bars[1], bars[2]})

	syms, err := s.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(syms) != 1 || syms[0] != "BTC-USD" {
		t.Errorf("ListSymbols = %v", syms)
	}
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Options{Kind: "feather"})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}
