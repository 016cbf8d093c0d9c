package engine

import "rbi/internal/domain"

// Price-level rules. A level already violated at the open fills at the open
// (gap); otherwise a level inside [low, high] fills at the level exactly.

type ohlc struct {
	open, high, low, close float64
}

// stopGapped reports whether the open is already through a protective stop.
func stopGapped(side domain.Side, sl, open float64) bool {
	if sl == 0 {
		return false
	}
	if side == domain.SideLong {
		return open <= sl
	}
	return open >= sl
}

// takeGapped reports whether the open is already through a take-profit.
func takeGapped(side domain.Side, tp, open float64) bool {
	if tp == 0 {
		return false
	}
	if side == domain.SideLong {
		return open >= tp
	}
	return open <= tp
}

// stopTouched reports whether the bar range reached a protective stop.
func stopTouched(side domain.Side, sl float64, b ohlc) bool {
	if sl == 0 {
		return false
	}
	if side == domain.SideLong {
		return b.low <= sl
	}
	return b.high >= sl
}

// takeTouched reports whether the bar range reached a take-profit.
func takeTouched(side domain.Side, tp float64, b ohlc) bool {
	if tp == 0 {
		return false
	}
	if side == domain.SideLong {
		return b.high >= tp
	}
	return b.low <= tp
}

// entryTrigger resolves a stop or limit entry against bar b.
//
//	long stop   high >= P   fills at max(open, P)
//	long limit  low  <= P   fills at min(open, P)
//	short stop  low  <= P   fills at min(open, P)
//	short limit high >= P   fills at max(open, P)
func entryTrigger(o *domain.Order, b ohlc) (float64, bool) {
	p := o.Price
	buyingUp := (o.Side == domain.SideLong) == (o.Kind == domain.OrderKindStop)
	if buyingUp {
		if b.high < p {
			return 0, false
		}
		if b.open >= p {
			return b.open, true
		}
		return p, true
	}
	if b.low > p {
		return 0, false
	}
	if b.open <= p {
		return b.open, true
	}
	return p, true
}

// levelsValid checks that sl and tp sit on the correct side of ref.
func levelsValid(side domain.Side, sl, tp, ref float64) (string, bool) {
	if side == domain.SideLong {
		if sl != 0 && sl >= ref {
			return "stop loss must be below the entry price for a long", false
		}
		if tp != 0 && tp <= ref {
			return "take profit must be above the entry price for a long", false
		}
		return "", true
	}
	if sl != 0 && sl <= ref {
		return "stop loss must be above the entry price for a short", false
	}
	if tp != 0 && tp >= ref {
		return "take profit must be below the entry price for a short", false
	}
	return "", true
}

// trail moves sl toward price by the trailing rule and never backwards.
func trail(side domain.Side, sl float64, tr domain.Trailing, b ohlc) float64 {
	if side == domain.SideLong {
		anchor := b.high
		if tr.Anchor == domain.TrailClose {
			anchor = b.close
		}
		if cand := anchor - tr.Offset; sl == 0 || cand > sl {
			return cand
		}
		return sl
	}
	anchor := b.low
	if tr.Anchor == domain.TrailClose {
		anchor = b.close
	}
	if cand := anchor + tr.Offset; sl == 0 || cand < sl {
		return cand
	}
	return sl
}
