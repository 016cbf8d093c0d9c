// Package builtins provides the strategies that ship with rbi.
package builtins

import (
	"rbi/internal/engine"
	"rbi/internal/indicator"
	"rbi/internal/strategy"
)

// Register adds every built-in definition to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossDefinition())
	r.Register(SqueezeBreakoutDefinition())
	r.Register(MomentumFusionDefinition())
	r.Register(VortexDefinition())
}

// crossedAbove reports a crosses b between the previous bar and this one.
func crossedAbove(a, b indicator.View) bool {
	if !a.Ready() || !b.Ready() || !a.ReadyAgo(1) || !b.ReadyAgo(1) {
		return false
	}
	return a.Ago(1) <= b.Ago(1) && a.Now() > b.Now()
}

func crossedBelow(a, b indicator.View) bool {
	return crossedAbove(b, a)
}

// aboveLevel reports v crossing above the constant x on this bar.
func aboveLevel(v indicator.View, x float64) bool {
	return v.Ready() && v.ReadyAgo(1) && v.Ago(1) <= x && v.Now() > x
}

func handles(ctx *engine.Context, calcs ...indicator.Calc) ([]*indicator.Handle, error) {
	out := make([]*indicator.Handle, 0, len(calcs))
	for _, c := range calcs {
		h, err := ctx.I(c)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
