package builtins

import (
	"rbi/internal/engine"
	"rbi/internal/indicator"
	"rbi/internal/series"
	"rbi/internal/strategy"
)

// Compile-time interface check.
var _ engine.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It goes
// long when the fast SMA crosses above the slow SMA and short when it
// crosses below, flipping any open position.
type SMACross struct {
	fast, slow *indicator.Handle
	size       float64
}

// SMACrossDefinition returns the "sma-cross" definition.
func SMACrossDefinition() strategy.Definition {
	return strategy.Definition{
		Name:        "sma-cross",
		Description: "fast/slow SMA crossover, always in the market after the first cross",
		Defaults:    engine.Params{"fast": 10, "slow": 30, "size": 1},
		New:         func() engine.Strategy { return &SMACross{} },
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init registers the two averages.
func (s *SMACross) Init(ctx *engine.Context) error {
	hs, err := handles(ctx,
		indicator.SMA(series.Close, ctx.IntParam("fast", 10)),
		indicator.SMA(series.Close, ctx.IntParam("slow", 30)))
	if err != nil {
		return err
	}
	s.fast, s.slow = hs[0], hs[1]
	s.size = ctx.ParamOr("size", 1)
	return nil
}

// Next flips on crossovers.
func (s *SMACross) Next(ctx *engine.Context) {
	fast, slow := ctx.V(s.fast), ctx.V(s.slow)
	pos := ctx.Position()
	switch {
	case crossedAbove(fast, slow) && !pos.IsLong():
		if pos.Open() {
			ctx.ClosePosition()
		}
		ctx.Buy(engine.OrderSpec{Size: s.size, Tag: "cross-up"})
	case crossedBelow(fast, slow) && !pos.IsShort():
		if pos.Open() {
			ctx.ClosePosition()
		}
		ctx.Sell(engine.OrderSpec{Size: s.size, Tag: "cross-down"})
	}
}
