package builtins

import (
	"rbi/internal/domain"
	"rbi/internal/engine"
	"rbi/internal/indicator"
	"rbi/internal/strategy"
)

// Vortex trades crossings of the vortex lines in both directions. Once a
// position has run one ATR in its favour the stop moves to breakeven.
type Vortex struct {
	plus, minus, atr *indicator.Handle

	risk, stopATR, breakevenATR float64
}

// VortexDefinition returns the "vortex" definition.
func VortexDefinition() strategy.Definition {
	return strategy.Definition{
		Name:        "vortex",
		Description: "VI+/VI- crossover, long and short, with breakeven stop",
		Defaults: engine.Params{
			"vortex_period": 14,
			"atr_period":    14,
			"risk":          0.01,
			"stop_atr":      2,
			"breakeven_atr": 1,
		},
		New: func() engine.Strategy { return &Vortex{} },
	}
}

func (v *Vortex) Name() string { return "vortex" }

func (v *Vortex) Init(ctx *engine.Context) error {
	vi, err := ctx.IAll(indicator.Vortex(ctx.IntParam("vortex_period", 14)))
	if err != nil {
		return err
	}
	v.plus, v.minus = vi[0], vi[1]
	if v.atr, err = ctx.I(indicator.ATR(ctx.IntParam("atr_period", 14))); err != nil {
		return err
	}
	v.risk = ctx.ParamOr("risk", 0.01)
	v.stopATR = ctx.ParamOr("stop_atr", 2)
	v.breakevenATR = ctx.ParamOr("breakeven_atr", 1)
	return nil
}

func (v *Vortex) Next(ctx *engine.Context) {
	atr := ctx.V(v.atr)
	if !atr.Ready() || atr.Now() <= 0 {
		return
	}
	c := ctx.Close().Now()
	a := atr.Now()
	v.breakeven(ctx, c, a)

	plus, minus := ctx.V(v.plus), ctx.V(v.minus)
	pos := ctx.Position()
	switch {
	case crossedAbove(plus, minus) && !pos.IsLong():
		if pos.Open() {
			ctx.ClosePosition()
		}
		sl := c - v.stopATR*a
		if n := ctx.SizeByRisk(v.risk, c, sl); n > 0 {
			ctx.Buy(engine.OrderSpec{Size: float64(n), SL: sl, Tag: "vi-up"})
		}
	case crossedBelow(plus, minus) && !pos.IsShort():
		if pos.Open() {
			ctx.ClosePosition()
		}
		sl := c + v.stopATR*a
		if n := ctx.SizeByRisk(v.risk, c, sl); n > 0 {
			ctx.Sell(engine.OrderSpec{Size: float64(n), SL: sl, Tag: "vi-down"})
		}
	}
}

func (v *Vortex) breakeven(ctx *engine.Context, c, atr float64) {
	for _, p := range ctx.Trades() {
		switch p.Side {
		case domain.SideLong:
			if p.SL < p.EntryPrice && c-p.EntryPrice >= v.breakevenATR*atr {
				ctx.UpdateStop(p.ID, p.EntryPrice)
			}
		case domain.SideShort:
			if (p.SL == 0 || p.SL > p.EntryPrice) && p.EntryPrice-c >= v.breakevenATR*atr {
				ctx.UpdateStop(p.ID, p.EntryPrice)
			}
		}
	}
}
