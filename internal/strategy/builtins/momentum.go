package builtins

import (
	"rbi/internal/engine"
	"rbi/internal/indicator"
	"rbi/internal/series"
	"rbi/internal/strategy"
)

// MomentumFusion is a long-only trend follower. It enters when the MACD
// histogram turns positive inside a trending market (ADX above a floor,
// +DI over -DI) with RSI confirming, and exits on fading momentum, its
// stop or take, or the holding limit. Losing streaks trigger a cooldown.
type MomentumFusion struct {
	rsi, hist        *indicator.Handle
	adx, plusDI, mDI *indicator.Handle
	atr              *indicator.Handle

	adxMin, rsiEntry, rsiExit float64
	risk, stopATR, takeATR    float64
}

// MomentumFusionDefinition returns the "momentum-fusion" definition.
func MomentumFusionDefinition() strategy.Definition {
	return strategy.Definition{
		Name:        "momentum-fusion",
		Description: "MACD/RSI/ADX long-only momentum with cooldown and time exit",
		Defaults: engine.Params{
			"rsi_period": 14, "rsi_entry": 55, "rsi_exit": 45,
			"macd_fast": 12, "macd_slow": 26, "macd_signal": 9,
			"adx_period": 14, "adx_min": 20,
			"atr_period": 14,
			"risk":       0.01, "stop_atr": 1.5, "take_atr": 3,

			strategy.ParamMaxBarsHeld:    48,
			strategy.ParamCooldownLosses: 3,
			strategy.ParamCooldownBars:   16,
		},
		New: func() engine.Strategy { return &MomentumFusion{} },
	}
}

func (m *MomentumFusion) Name() string { return "momentum-fusion" }

func (m *MomentumFusion) Init(ctx *engine.Context) error {
	var err error
	if m.rsi, err = ctx.I(indicator.RSI(series.Close, ctx.IntParam("rsi_period", 14))); err != nil {
		return err
	}
	macd := indicator.MACD(series.Close, ctx.IntParam("macd_fast", 12), ctx.IntParam("macd_slow", 26), ctx.IntParam("macd_signal", 9))
	if m.hist, err = ctx.I(macd, indicator.Select("hist")); err != nil {
		return err
	}
	adx, err := ctx.IAll(indicator.ADX(ctx.IntParam("adx_period", 14)))
	if err != nil {
		return err
	}
	m.adx, m.plusDI, m.mDI = adx[0], adx[1], adx[2]
	if m.atr, err = ctx.I(indicator.ATR(ctx.IntParam("atr_period", 14))); err != nil {
		return err
	}
	m.adxMin = ctx.ParamOr("adx_min", 20)
	m.rsiEntry = ctx.ParamOr("rsi_entry", 55)
	m.rsiExit = ctx.ParamOr("rsi_exit", 45)
	m.risk = ctx.ParamOr("risk", 0.01)
	m.stopATR = ctx.ParamOr("stop_atr", 1.5)
	m.takeATR = ctx.ParamOr("take_atr", 3)
	return nil
}

func (m *MomentumFusion) Next(ctx *engine.Context) {
	rsi, hist := ctx.V(m.rsi), ctx.V(m.hist)
	if !rsi.Ready() || !hist.Ready() {
		return
	}
	if ctx.Position().IsLong() {
		if rsi.Now() < m.rsiExit || hist.Now() < 0 {
			ctx.ClosePosition()
		}
		return
	}

	adx, atr := ctx.V(m.adx), ctx.V(m.atr)
	if !adx.Ready() || !atr.Ready() || atr.Now() <= 0 {
		return
	}
	trending := adx.Now() > m.adxMin && ctx.V(m.plusDI).Now() > ctx.V(m.mDI).Now()
	if !trending || !aboveLevel(hist, 0) || rsi.Now() <= m.rsiEntry {
		return
	}
	c := ctx.Close().Now()
	sl := c - m.stopATR*atr.Now()
	tp := c + m.takeATR*atr.Now()
	if n := ctx.SizeByRisk(m.risk, c, sl); n > 0 {
		ctx.Buy(engine.OrderSpec{Size: float64(n), SL: sl, TP: tp, Tag: "momentum"})
	}
}
