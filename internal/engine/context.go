package engine

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"rbi/internal/domain"
	"rbi/internal/indicator"
	"rbi/internal/series"
)

// Params are the scalar parameters a strategy declares.
type Params map[string]float64

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names sorted.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OrderSpec describes an entry. Kind defaults to market. Zero SL or TP means
// no level.
type OrderSpec struct {
	Size     float64
	Kind     domain.OrderKind
	Price    float64
	SL       float64
	TP       float64
	Trailing *domain.Trailing
	Tag      string
}

// PositionView summarises the open book for a strategy.
type PositionView struct {
	// Units is the net signed size: positive long, negative short.
	Units int
	// Trades is the number of open positions.
	Trades int
}

// Open reports whether any position is open.
func (p PositionView) Open() bool { return p.Trades > 0 }

// IsLong reports a net long book.
func (p PositionView) IsLong() bool { return p.Units > 0 }

// IsShort reports a net short book.
func (p PositionView) IsShort() bool { return p.Units < 0 }

// Context is what a strategy sees. During Init it registers indicators;
// during Next it reads data up to the current bar and issues orders.
type Context struct {
	r *run
}

// I registers an indicator. It is only valid during Init.
func (c *Context) I(calc indicator.Calc, opts ...indicator.Option) (*indicator.Handle, error) {
	return c.r.reg.Register(calc, opts...)
}

// IAll registers every output of a multi-output indicator.
func (c *Context) IAll(calc indicator.Calc, opts ...indicator.Option) ([]*indicator.Handle, error) {
	return c.r.reg.RegisterAll(calc, opts...)
}

// Column returns a handle on a bar series column such as "Close" or
// "funding_rate".
func (c *Context) Column(name string) (*indicator.Handle, error) {
	return c.r.reg.Column(name)
}

// Param returns a declared parameter, zero when absent.
func (c *Context) Param(name string) float64 { return c.r.params[name] }

// ParamOr returns a declared parameter or def when absent.
func (c *Context) ParamOr(name string, def float64) float64 {
	if v, ok := c.r.params[name]; ok {
		return v
	}
	return def
}

// IntParam returns a declared parameter rounded to an int, or def.
func (c *Context) IntParam(name string, def int) int {
	if v, ok := c.r.params[name]; ok {
		return int(math.Round(v))
	}
	return def
}

// Len returns the total number of bars in the run.
func (c *Context) Len() int { return c.r.s.Len() }

// Index returns the current bar.
func (c *Context) Index() int { return c.r.t }

// Time returns the timestamp of the current bar.
func (c *Context) Time() time.Time { return c.r.s.Time(c.r.t) }

// Bar materialises the current bar.
func (c *Context) Bar() domain.Bar { return c.r.s.Bar(c.r.t) }

// V returns the causal view of h at the current bar.
func (c *Context) V(h *indicator.Handle) indicator.View { return h.View(c.r.t) }

// Open returns the causal view of the open column.
func (c *Context) Open() indicator.View { return c.r.cols[0].View(c.r.t) }

// High returns the causal view of the high column.
func (c *Context) High() indicator.View { return c.r.cols[1].View(c.r.t) }

// Low returns the causal view of the low column.
func (c *Context) Low() indicator.View { return c.r.cols[2].View(c.r.t) }

// Close returns the causal view of the close column.
func (c *Context) Close() indicator.View { return c.r.cols[3].View(c.r.t) }

// Volume returns the causal view of the volume column.
func (c *Context) Volume() indicator.View { return c.r.cols[4].View(c.r.t) }

// Equity returns cash plus open positions marked at the current close.
func (c *Context) Equity() float64 {
	return c.r.br.Equity(c.r.m.bars[c.r.t].close)
}

// Cash returns the current cash balance.
func (c *Context) Cash() float64 { return c.r.br.Cash() }

// Position summarises the open book.
func (c *Context) Position() PositionView {
	var v PositionView
	for _, p := range c.r.m.open {
		v.Units += int(p.Side.Sign()) * p.Units
		v.Trades++
	}
	return v
}

// Trades returns copies of the open positions.
func (c *Context) Trades() []domain.Position {
	out := make([]domain.Position, len(c.r.m.open))
	for i, p := range c.r.m.open {
		out[i] = *p
		if p.Trailing != nil {
			tr := *p.Trailing
			out[i].Trailing = &tr
		}
	}
	return out
}

// ClosedTrades returns the trades closed so far.
func (c *Context) ClosedTrades() []domain.ClosedTrade {
	return append([]domain.ClosedTrade(nil), c.r.m.trades...)
}

// Buy issues a long entry and returns its order id.
func (c *Context) Buy(spec OrderSpec) int {
	return c.r.m.submit(c.r.t, domain.SideLong, spec)
}

// Sell issues a short entry and returns its order id.
func (c *Context) Sell(spec OrderSpec) int {
	return c.r.m.submit(c.r.t, domain.SideShort, spec)
}

// ClosePosition closes every open position at the next open.
func (c *Context) ClosePosition() { c.r.m.closeAll() }

// CloseTrade closes one open position at the next open.
func (c *Context) CloseTrade(id int) { c.r.m.closeTrade(id) }

// CancelOrders cancels every entry that has not filled yet.
func (c *Context) CancelOrders() { c.r.m.cancelPending(c.r.t) }

// SetTrailing attaches a trailing stop to every open position on side and
// returns how many were updated. The stop first moves at this bar's close.
func (c *Context) SetTrailing(side domain.Side, tr domain.Trailing) int {
	return c.r.m.setTrailing(c.r.t, side, tr)
}

// UpdateStop moves the stop of an open position. Longs may only raise it and
// shorts only lower it, and it must stay on the loss side of the current
// close. Refused updates are recorded as InvalidStop rejections.
func (c *Context) UpdateStop(id int, sl float64) bool {
	return c.r.m.updateStop(c.r.t, id, sl)
}

// SizeByRisk sizes an entry to risk fraction r of current equity.
func (c *Context) SizeByRisk(r, entry, stop float64) int {
	return RiskSize(c.Equity(), r, entry, stop)
}

// Logger returns the run logger.
func (c *Context) Logger() *slog.Logger { return c.r.log }

var priceColumns = [...]string{series.Open, series.High, series.Low, series.Close, series.Volume}
