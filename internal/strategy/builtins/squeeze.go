package builtins

import (
	"rbi/internal/domain"
	"rbi/internal/engine"
	"rbi/internal/indicator"
	"rbi/internal/series"
	"rbi/internal/strategy"
)

// SqueezeBreakout trades the release of a volatility squeeze: Bollinger
// bands contracted inside the Keltner channel on the previous bar, then the
// close breaks out of the bands. Entries are risk-sized with an ATR stop and
// an ATR trailing stop.
type SqueezeBreakout struct {
	bbUp, bbLo *indicator.Handle
	kcUp, kcLo *indicator.Handle
	atr        *indicator.Handle

	risk, stopATR, trailATR float64
}

// SqueezeBreakoutDefinition returns the "volatility-squeeze" definition.
func SqueezeBreakoutDefinition() strategy.Definition {
	return strategy.Definition{
		Name:        "volatility-squeeze",
		Description: "Bollinger/Keltner squeeze release with ATR trailing stop",
		Defaults: engine.Params{
			"bb_period": 20, "bb_k": 2,
			"kc_period": 20, "kc_mult": 1.5,
			"atr_period": 14,
			"risk":       0.01,
			"stop_atr":   2,
			"trail_atr":  3,

			strategy.ParamMaxBarsHeld: 96,
		},
		New: func() engine.Strategy { return &SqueezeBreakout{} },
	}
}

func (s *SqueezeBreakout) Name() string { return "volatility-squeeze" }

func (s *SqueezeBreakout) Init(ctx *engine.Context) error {
	bbN, kcN := ctx.IntParam("bb_period", 20), ctx.IntParam("kc_period", 20)
	bb, err := ctx.IAll(indicator.Bollinger(series.Close, bbN, ctx.ParamOr("bb_k", 2)))
	if err != nil {
		return err
	}
	s.bbUp, s.bbLo = bb[0], bb[2]
	kc, err := ctx.IAll(indicator.Keltner(kcN, ctx.ParamOr("kc_mult", 1.5)))
	if err != nil {
		return err
	}
	s.kcUp, s.kcLo = kc[0], kc[2]
	if s.atr, err = ctx.I(indicator.ATR(ctx.IntParam("atr_period", 14))); err != nil {
		return err
	}
	s.risk = ctx.ParamOr("risk", 0.01)
	s.stopATR = ctx.ParamOr("stop_atr", 2)
	s.trailATR = ctx.ParamOr("trail_atr", 3)
	return nil
}

func (s *SqueezeBreakout) Next(ctx *engine.Context) {
	if ctx.Position().Open() {
		return
	}
	bbUp, bbLo := ctx.V(s.bbUp), ctx.V(s.bbLo)
	kcUp, kcLo := ctx.V(s.kcUp), ctx.V(s.kcLo)
	atr := ctx.V(s.atr)
	if !atr.Ready() || atr.Now() <= 0 || !kcUp.ReadyAgo(1) || !bbUp.ReadyAgo(1) {
		return
	}
	squeezed := bbUp.Ago(1) < kcUp.Ago(1) && bbLo.Ago(1) > kcLo.Ago(1)
	if !squeezed {
		return
	}

	c := ctx.Close().Now()
	trail := &domain.Trailing{Anchor: domain.TrailExtreme, Offset: s.trailATR * atr.Now()}
	switch {
	case c > bbUp.Now():
		sl := c - s.stopATR*atr.Now()
		if n := ctx.SizeByRisk(s.risk, c, sl); n > 0 {
			ctx.Buy(engine.OrderSpec{Size: float64(n), SL: sl, Trailing: trail, Tag: "squeeze-up"})
		}
	case c < bbLo.Now():
		sl := c + s.stopATR*atr.Now()
		if n := ctx.SizeByRisk(s.risk, c, sl); n > 0 {
			ctx.Sell(engine.OrderSpec{Size: float64(n), SL: sl, Trailing: trail, Tag: "squeeze-down"})
		}
	}
}
