package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rbi/internal/domain"
	"rbi/internal/engine"
	"rbi/internal/series"
	"rbi/internal/store"
)

// Backtester replays bars from a store through named strategies.
type Backtester struct {
	store    store.BarStore
	registry *Registry
	engine   *engine.Engine
	log      *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from the given store,
// looks up strategies in the provided registry and runs them on eng.
// barStore may be nil when only RunSeries is used.
func NewBacktester(barStore store.BarStore, registry *Registry, eng *engine.Engine, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Backtester{
		store:    barStore,
		registry: registry,
		engine:   eng,
		log:      log,
	}
}

// Load reads the bars for symbol and timeframe in [start, end] and builds a
// series.
func (bt *Backtester) Load(ctx context.Context, symbol, timeframe string, start, end time.Time) (*series.Series, error) {
	bars, err := bt.store.ReadBars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading %s %s: %w", symbol, timeframe, err)
	}
	s, err := series.New(bars)
	if err != nil {
		return nil, fmt.Errorf("building series %s %s: %w", symbol, timeframe, err)
	}
	bt.log.Info("bars loaded", "symbol", symbol, "timeframe", timeframe, "bars", s.Len())
	return s, nil
}

// RunSeries runs the named strategy with parameter overrides over s.
func (bt *Backtester) RunSeries(s *series.Series, name string, overrides engine.Params) (*engine.Result, error) {
	strat, params, err := bt.registry.New(name, overrides)
	if err != nil {
		return nil, err
	}
	return bt.engine.Run(s, strat, params)
}

// Run loads the bars and runs the named strategy over them.
func (bt *Backtester) Run(ctx context.Context, name string, overrides engine.Params, symbol, timeframe string, start, end time.Time) (*engine.Result, error) {
	if _, ok := bt.registry.Get(name); !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, name)
	}
	s, err := bt.Load(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	return bt.RunSeries(s, name, overrides)
}
