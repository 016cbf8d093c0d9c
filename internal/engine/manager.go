package engine

import (
	"fmt"
	"math"
	"time"

	"rbi/internal/broker"
	"rbi/internal/domain"
)

type intentKind int

const (
	intentEntry intentKind = iota
	intentCloseAll
	intentCloseTrade
)

// intent is a strategy request queued at bar b and resolved at the open of
// b+1, in issuance order.
type intent struct {
	kind       intentKind
	order      *domain.Order
	pos        *domain.Position
	positionID int
	// for exclusive closes, the side of the entry that caused them; only
	// positions on the other side are closed
	entrySide domain.Side
}

type entry struct {
	order *domain.Order
	pos   *domain.Position
}

// manager is the order and position manager. It is the only writer of
// position state.
type manager struct {
	cfg    Config
	policy Policy
	br     broker.Broker
	sink   Sink

	times []time.Time
	bars  []ohlc

	nextOrderID int
	nextPosID   int

	queue []intent
	book  []entry
	open  []*domain.Position

	orders     []*domain.Order
	fills      []domain.Fill
	trades     []domain.ClosedTrade
	rejections []domain.Rejection
	equity     []domain.EquitySnapshot

	lossStreak    int
	cooldownUntil int
}

func newManager(cfg Config, policy Policy, br broker.Broker, sink Sink, times []time.Time, bars []ohlc) *manager {
	return &manager{
		cfg:         cfg,
		policy:      policy,
		br:          br,
		sink:        sink,
		times:       times,
		bars:        bars,
		nextOrderID: 1,
		nextPosID:   1,
		equity:      make([]domain.EquitySnapshot, 0, len(bars)),
	}
}

// ---------------------------------------------------------------------------
// Intake (during Next at bar t)
// ---------------------------------------------------------------------------

func (m *manager) submit(t int, side domain.Side, spec OrderSpec) int {
	kind := spec.Kind
	if kind == "" {
		kind = domain.OrderKindMarket
	}
	o := &domain.Order{
		ID:     m.nextOrderID,
		Side:   side,
		Kind:   kind,
		Size:   spec.Size,
		Price:  spec.Price,
		SL:     spec.SL,
		TP:     spec.TP,
		Tag:    spec.Tag,
		Bar:    t,
		Status: domain.OrderStatusPending,
	}
	if spec.Trailing != nil {
		tr := *spec.Trailing
		o.Trailing = &tr
	}
	m.nextOrderID++
	m.orders = append(m.orders, o)
	m.emit(Event{Kind: EventOrderIssued, Bar: t, Time: m.times[t], Order: o})

	if s := o.Size; !(s > 0) || math.IsInf(s, 0) || s != math.Trunc(s) {
		m.reject(t, o, nil, domain.RejectInvalidSize, fmt.Sprintf("size %v is not a positive whole number", s))
		return o.ID
	}
	ref := m.bars[t].close
	switch kind {
	case domain.OrderKindMarket:
	case domain.OrderKindStop, domain.OrderKindLimit:
		if !(o.Price > 0) {
			m.reject(t, o, nil, domain.RejectInvalidStop, fmt.Sprintf("%s entry needs a positive trigger price", kind))
			return o.ID
		}
		ref = o.Price
	default:
		m.reject(t, o, nil, domain.RejectInvalidSize, fmt.Sprintf("unknown order kind %q", kind))
		return o.ID
	}
	if reason, ok := levelsValid(side, o.SL, o.TP, ref); !ok {
		m.reject(t, o, nil, domain.RejectInvalidStop, reason)
		return o.ID
	}
	if o.Trailing != nil && !(o.Trailing.Offset > 0) {
		m.reject(t, o, nil, domain.RejectInvalidStop, "trailing offset must be positive")
		return o.ID
	}

	pos := &domain.Position{
		ID:       m.nextPosID,
		OrderID:  o.ID,
		Side:     side,
		SL:       o.SL,
		TP:       o.TP,
		Trailing: o.Trailing,
		Tag:      o.Tag,
		State:    domain.PositionPending,
	}
	m.nextPosID++

	if m.cfg.ExclusiveOrders {
		m.cancelPending(t)
		m.queue = append(m.queue, intent{kind: intentCloseAll, entrySide: side})
	}
	m.queue = append(m.queue, intent{kind: intentEntry, order: o, pos: pos})
	return o.ID
}

func (m *manager) closeAll() {
	m.queue = append(m.queue, intent{kind: intentCloseAll})
}

func (m *manager) closeTrade(id int) {
	m.queue = append(m.queue, intent{kind: intentCloseTrade, positionID: id})
}

// cancelPending cancels every entry that has not filled: queued market
// orders and resting stop/limit orders.
func (m *manager) cancelPending(t int) {
	for _, in := range m.queue {
		if in.kind == intentEntry {
			m.cancel(t, in.order, in.pos)
		}
	}
	for _, e := range m.book {
		m.cancel(t, e.order, e.pos)
	}
	m.book = nil
}

func (m *manager) cancel(t int, o *domain.Order, pos *domain.Position) {
	if o.Status != domain.OrderStatusPending {
		return
	}
	o.Status = domain.OrderStatusCancelled
	if pos != nil && pos.State == domain.PositionPending {
		// pending -> cancelled is always allowed
		_ = pos.Transition(domain.PositionCancelled)
	}
	m.emit(Event{Kind: EventOrderCancelled, Bar: t, Time: m.times[t], Order: o})
}

func (m *manager) updateStop(t, id int, sl float64) bool {
	p := m.find(id)
	if p == nil {
		return false
	}
	c := m.bars[t].close
	var reason string
	switch {
	case !(sl > 0):
		reason = "stop must be positive"
	case p.Side == domain.SideLong && sl >= c:
		reason = "stop must be below the current close for a long"
	case p.Side == domain.SideShort && sl <= c:
		reason = "stop must be above the current close for a short"
	case p.SL != 0 && p.Side == domain.SideLong && sl < p.SL:
		reason = "long stop may only move up"
	case p.SL != 0 && p.Side == domain.SideShort && sl > p.SL:
		reason = "short stop may only move down"
	}
	if reason != "" {
		m.record(t, p.OrderID, domain.RejectInvalidStop, fmt.Sprintf("update stop %v on position %d: %s", sl, id, reason))
		return false
	}
	p.SL = sl
	return true
}

func (m *manager) setTrailing(t int, side domain.Side, tr domain.Trailing) int {
	if !(tr.Offset > 0) {
		m.record(t, 0, domain.RejectInvalidStop, "trailing offset must be positive")
		return 0
	}
	n := 0
	for _, p := range m.open {
		if p.Side == side {
			cp := tr
			p.Trailing = &cp
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Resolution (bar boundaries)
// ---------------------------------------------------------------------------

// openPhase resolves the intents queued at t-1 at the open of t, then checks
// gapped protective levels and due time exits.
func (m *manager) openPhase(t int) error {
	b := m.bars[t]
	if err := m.resolveQueue(t, b.open, false); err != nil {
		return err
	}
	for _, p := range m.snapshotOpen() {
		var reason domain.ExitReason
		switch {
		case stopGapped(p.Side, p.SL, b.open):
			reason = domain.ExitStop
		case takeGapped(p.Side, p.TP, b.open):
			reason = domain.ExitTake
		case m.policy.MaxBarsHeld > 0 && t-p.EntryBar >= m.policy.MaxBarsHeld:
			reason = domain.ExitTime
		default:
			continue
		}
		if err := m.closePosition(t, p, b.open, reason); err != nil {
			return err
		}
	}
	return nil
}

func (m *manager) resolveQueue(t int, price float64, last bool) error {
	q := m.queue
	m.queue = nil
	for _, in := range q {
		switch in.kind {
		case intentCloseAll:
			for _, p := range m.snapshotOpen() {
				reason := domain.ExitSignal
				if in.entrySide != "" {
					// Exclusive entries close only the opposite side.
					if p.Side == in.entrySide {
						continue
					}
					reason = domain.ExitReversal
				}
				if err := m.closePosition(t, p, price, reason); err != nil {
					return err
				}
			}
		case intentCloseTrade:
			if p := m.find(in.positionID); p != nil {
				if err := m.closePosition(t, p, price, domain.ExitSignal); err != nil {
					return err
				}
			}
		case intentEntry:
			if in.order.Status != domain.OrderStatusPending {
				continue
			}
			if in.order.Kind != domain.OrderKindMarket {
				if last {
					m.cancel(t, in.order, in.pos)
				} else {
					m.book = append(m.book, entry{order: in.order, pos: in.pos})
				}
				continue
			}
			if _, err := m.fillEntry(t, in.order, in.pos, price); err != nil {
				return err
			}
		}
	}
	return nil
}

// intrabarPhase triggers resting entries and then checks protective levels
// against the bar range, stop before take.
func (m *manager) intrabarPhase(t int) error {
	b := m.bars[t]
	sameBar := make(map[int]bool)
	book := m.book
	m.book = nil
	for _, e := range book {
		if e.order.Status != domain.OrderStatusPending {
			continue
		}
		price, ok := entryTrigger(e.order, b)
		if !ok {
			m.book = append(m.book, e)
			continue
		}
		filled, err := m.fillEntry(t, e.order, e.pos, price)
		if err != nil {
			return err
		}
		if filled {
			sameBar[e.pos.ID] = true
		}
	}

	for _, p := range m.snapshotOpen() {
		switch {
		case stopTouched(p.Side, p.SL, b):
			if err := m.closePosition(t, p, p.SL, domain.ExitStop); err != nil {
				return err
			}
		case sameBar[p.ID]:
			// the path after an intrabar entry is unknown; only the stop counts
		case takeTouched(p.Side, p.TP, b):
			if err := m.closePosition(t, p, p.TP, domain.ExitTake); err != nil {
				return err
			}
		}
	}
	return nil
}

// closePhase ratchets trailing stops on the observed range, marks the book
// at the close and checks the ledger.
func (m *manager) closePhase(t int) error {
	b := m.bars[t]
	for _, p := range m.open {
		if p.Trailing != nil {
			p.SL = trail(p.Side, p.SL, *p.Trailing, b)
		}
	}
	return m.mark(t)
}

// finish runs after Next on the last bar: intents fill or close at the last
// close, resting orders are cancelled and every open position is closed with
// reason time.
func (m *manager) finish(last int) error {
	c := m.bars[last].close
	if err := m.resolveQueue(last, c, true); err != nil {
		return err
	}
	for _, e := range m.book {
		m.cancel(last, e.order, e.pos)
	}
	m.book = nil
	for _, p := range m.snapshotOpen() {
		if err := m.closePosition(last, p, c, domain.ExitTime); err != nil {
			return err
		}
	}
	m.equity = m.equity[:len(m.equity)-1]
	return m.mark(last)
}

func (m *manager) mark(t int) error {
	snap := m.br.Mark(t, m.times[t], m.bars[t].close)
	m.equity = append(m.equity, snap)
	if err := m.br.Reconcile(m.open); err != nil {
		return fmt.Errorf("bar %d: %w", t, err)
	}
	value := 0.0
	for _, p := range m.open {
		value += p.Value(m.bars[t].close)
	}
	if tol := 1e-9 * math.Max(1, math.Abs(snap.Equity)); math.Abs(snap.Cash+value-snap.Equity) > tol {
		return fmt.Errorf("bar %d: %w: cash %v + positions %v != equity %v",
			t, domain.ErrLedgerDesync, snap.Cash, value, snap.Equity)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Fills
// ---------------------------------------------------------------------------

func (m *manager) fillEntry(t int, o *domain.Order, pos *domain.Position, price float64) (bool, error) {
	if t < m.cooldownUntil {
		m.reject(t, o, pos, domain.RejectCooldownActive,
			fmt.Sprintf("entries suspended until bar %d after %d consecutive losses", m.cooldownUntil, m.policy.CooldownLosses))
		return false, nil
	}
	if len(m.open) >= m.policy.MaxConcurrent {
		m.reject(t, o, pos, domain.RejectConcurrencyExceeded,
			fmt.Sprintf("%d of %d positions open", len(m.open), m.policy.MaxConcurrent))
		return false, nil
	}
	if reason, ok := levelsValid(o.Side, pos.SL, pos.TP, price); !ok {
		m.reject(t, o, pos, domain.RejectInvalidStop, fmt.Sprintf("%s (fill %v)", reason, price))
		return false, nil
	}
	units := int(o.Size)
	if afford := m.br.MaxUnits(price, price); units > afford {
		if !m.cfg.CapSizeByCash || afford <= 0 {
			m.reject(t, o, pos, domain.RejectInsufficientMargin,
				fmt.Sprintf("%d units at %v, ledger affords %d", units, price, afford))
			return false, nil
		}
		units = afford
	}

	commission, err := m.br.Open(pos.ID, o.Side, units, price)
	if err != nil {
		return false, fmt.Errorf("bar %d: %w", t, err)
	}
	if err := pos.Transition(domain.PositionOpen); err != nil {
		return false, fmt.Errorf("bar %d: %w", t, err)
	}
	pos.Units = units
	pos.EntryPrice = price
	pos.EntryBar = t
	pos.EntryTime = m.times[t]
	pos.EntryCommission = commission
	o.Status = domain.OrderStatusFilled
	m.open = append(m.open, pos)

	f := domain.Fill{
		OrderID:    o.ID,
		PositionID: pos.ID,
		Side:       o.Side,
		Action:     domain.FillEntry,
		Price:      price,
		Units:      units,
		Bar:        t,
		Time:       m.times[t],
		Commission: commission,
	}
	m.fills = append(m.fills, f)
	m.emit(Event{Kind: EventOrderFilled, Bar: t, Time: m.times[t], Order: o, Fill: &f})
	return true, nil
}

func (m *manager) closePosition(t int, p *domain.Position, price float64, reason domain.ExitReason) error {
	commission, gross, err := m.br.Close(p.ID, price)
	if err != nil {
		return fmt.Errorf("bar %d: %w", t, err)
	}
	if err := p.Transition(domain.PositionClosed); err != nil {
		return fmt.Errorf("bar %d: %w", t, err)
	}
	for i, q := range m.open {
		if q == p {
			m.open = append(m.open[:i], m.open[i+1:]...)
			break
		}
	}

	pnl := gross - p.EntryCommission - commission
	tr := domain.ClosedTrade{
		PositionID:   p.ID,
		Side:         p.Side,
		Units:        p.Units,
		EntryPrice:   p.EntryPrice,
		ExitPrice:    price,
		EntryBar:     p.EntryBar,
		ExitBar:      t,
		EntryTime:    p.EntryTime,
		ExitTime:     m.times[t],
		PnL:          pnl,
		PnLPct:       pnl / (float64(p.Units) * p.EntryPrice),
		Commission:   p.EntryCommission + commission,
		DurationBars: t - p.EntryBar,
		ExitReason:   reason,
		Tag:          p.Tag,
	}
	m.trades = append(m.trades, tr)

	f := domain.Fill{
		OrderID:    p.OrderID,
		PositionID: p.ID,
		Side:       p.Side.Opposite(),
		Action:     domain.FillExit,
		Price:      price,
		Units:      p.Units,
		Bar:        t,
		Time:       m.times[t],
		Commission: commission,
	}
	m.fills = append(m.fills, f)
	m.emit(Event{Kind: EventOrderFilled, Bar: t, Time: m.times[t], Fill: &f})
	m.emit(Event{Kind: EventPositionClosed, Bar: t, Time: m.times[t], Trade: &tr})

	if pnl < 0 {
		m.lossStreak++
		if k := m.policy.CooldownLosses; k > 0 && m.lossStreak >= k {
			m.cooldownUntil = t + m.policy.CooldownBars
			m.lossStreak = 0
		}
	} else {
		m.lossStreak = 0
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (m *manager) reject(t int, o *domain.Order, pos *domain.Position, code domain.RejectCode, reason string) {
	o.Status = domain.OrderStatusRejected
	if pos != nil && pos.State == domain.PositionPending {
		_ = pos.Transition(domain.PositionCancelled)
	}
	m.record(t, o.ID, code, reason)
}

func (m *manager) record(t, orderID int, code domain.RejectCode, reason string) {
	r := domain.Rejection{Bar: t, Time: m.times[t], OrderID: orderID, Code: code, Reason: reason}
	m.rejections = append(m.rejections, r)
	m.emit(Event{Kind: EventOrderRejected, Bar: t, Time: m.times[t], Rejection: &r})
}

func (m *manager) find(id int) *domain.Position {
	for _, p := range m.open {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *manager) snapshotOpen() []*domain.Position {
	return append([]*domain.Position(nil), m.open...)
}

func (m *manager) emit(e Event) {
	m.sink.Emit(e)
}
