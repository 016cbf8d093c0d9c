package broker

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"rbi/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*Simulator)(nil)

type holding struct {
	side  domain.Side
	units int
	entry decimal.Decimal
}

// Simulator is the in-memory ledger for backtests. Cash, realized PnL and
// commissions are kept in decimal so the accounting identity
//
//	cash = start - commissions + realized - sum(sign * units * entry)
//
// holds exactly and can be checked after every bar.
type Simulator struct {
	start       decimal.Decimal
	cash        decimal.Decimal
	realized    decimal.Decimal
	commissions decimal.Decimal
	rate        decimal.Decimal
	margin      float64

	book map[int]*holding
}

// NewSimulator creates a ledger with the given starting cash, commission
// rate (fraction of notional per fill) and margin multiplier.
func NewSimulator(cash, commissionRate, margin float64) *Simulator {
	start := decimal.NewFromFloat(cash)
	if margin <= 0 {
		margin = 1
	}
	return &Simulator{
		start:  start,
		cash:   start,
		rate:   decimal.NewFromFloat(commissionRate),
		margin: margin,
		book:   make(map[int]*holding),
	}
}

// Name returns "simulator".
func (b *Simulator) Name() string {
	return "simulator"
}

// Open debits a long entry (or credits a short sale) and charges commission.
func (b *Simulator) Open(positionID int, side domain.Side, units int, price float64) (float64, error) {
	if _, ok := b.book[positionID]; ok {
		return 0, fmt.Errorf("%w: position %d already open", domain.ErrLedgerDesync, positionID)
	}
	if units <= 0 {
		return 0, fmt.Errorf("%w: position %d opened with %d units", domain.ErrLedgerDesync, positionID, units)
	}
	p := decimal.NewFromFloat(price)
	notional := p.Mul(decimal.NewFromInt(int64(units)))
	fee := notional.Mul(b.rate)

	b.cash = b.cash.Sub(signed(side, notional)).Sub(fee)
	b.commissions = b.commissions.Add(fee)
	b.book[positionID] = &holding{side: side, units: units, entry: p}
	return fee.InexactFloat64(), nil
}

// Close reverses the entry cash flow at price, books the realized PnL and
// charges commission.
func (b *Simulator) Close(positionID int, price float64) (float64, float64, error) {
	h, ok := b.book[positionID]
	if !ok {
		return 0, 0, fmt.Errorf("%w: close of unknown position %d", domain.ErrLedgerDesync, positionID)
	}
	p := decimal.NewFromFloat(price)
	units := decimal.NewFromInt(int64(h.units))
	notional := p.Mul(units)
	fee := notional.Mul(b.rate)
	gross := signed(h.side, p.Sub(h.entry).Mul(units))

	b.cash = b.cash.Add(signed(h.side, notional)).Sub(fee)
	b.realized = b.realized.Add(gross)
	b.commissions = b.commissions.Add(fee)
	delete(b.book, positionID)
	return fee.InexactFloat64(), gross.InexactFloat64(), nil
}

// Cash returns the current cash balance.
func (b *Simulator) Cash() float64 {
	return b.cash.InexactFloat64()
}

// Equity marks every open holding at price.
func (b *Simulator) Equity(price float64) float64 {
	return b.equity(decimal.NewFromFloat(price)).InexactFloat64()
}

func (b *Simulator) equity(p decimal.Decimal) decimal.Decimal {
	eq := b.cash
	for _, h := range b.book {
		eq = eq.Add(signed(h.side, p.Mul(decimal.NewFromInt(int64(h.units)))))
	}
	return eq
}

// MaxUnits returns floor(free / (price * (margin + rate))) where free is
// marked equity less the margin already held by open positions.
func (b *Simulator) MaxUnits(price, mark float64) int {
	if price <= 0 {
		return 0
	}
	var held int
	for _, h := range b.book {
		held += h.units
	}
	free := b.Equity(mark) - b.margin*float64(held)*mark
	perUnit := price * (b.margin + b.rate.InexactFloat64())
	if free <= 0 || perUnit <= 0 {
		return 0
	}
	return int(math.Floor(free/perUnit + 1e-9))
}

// Mark records equity at close.
func (b *Simulator) Mark(bar int, ts time.Time, close float64) domain.EquitySnapshot {
	p := decimal.NewFromFloat(close)
	eq := b.equity(p)
	var open decimal.Decimal
	for _, h := range b.book {
		open = open.Add(signed(h.side, p.Sub(h.entry).Mul(decimal.NewFromInt(int64(h.units)))))
	}
	return domain.EquitySnapshot{
		Bar:     bar,
		Time:    ts,
		Cash:    b.cash.InexactFloat64(),
		Equity:  eq.InexactFloat64(),
		OpenPnL: open.InexactFloat64(),
	}
}

// Reconcile verifies that the ledger book matches the open positions one for
// one and that the cash identity holds exactly.
func (b *Simulator) Reconcile(open []*domain.Position) error {
	if len(open) != len(b.book) {
		return fmt.Errorf("%w: manager has %d open positions, ledger has %d",
			domain.ErrLedgerDesync, len(open), len(b.book))
	}
	basis := decimal.Zero
	for _, p := range open {
		h, ok := b.book[p.ID]
		if !ok {
			return fmt.Errorf("%w: position %d not in ledger", domain.ErrLedgerDesync, p.ID)
		}
		if h.side != p.Side || h.units != p.Units || !h.entry.Equal(decimal.NewFromFloat(p.EntryPrice)) {
			return fmt.Errorf("%w: position %d is %s %d@%v in manager, %s %d@%s in ledger",
				domain.ErrLedgerDesync, p.ID, p.Side, p.Units, p.EntryPrice, h.side, h.units, h.entry)
		}
		basis = basis.Add(signed(h.side, h.entry.Mul(decimal.NewFromInt(int64(h.units)))))
	}
	want := b.start.Sub(b.commissions).Add(b.realized).Sub(basis)
	if !want.Equal(b.cash) {
		return fmt.Errorf("%w: cash %s, identity gives %s", domain.ErrLedgerDesync, b.cash, want)
	}
	return nil
}

func signed(side domain.Side, v decimal.Decimal) decimal.Decimal {
	if side == domain.SideShort {
		return v.Neg()
	}
	return v
}
