// Package domain defines the value types shared by every layer of the
// backtesting engine: bars, orders, fills, positions, closed trades, equity
// snapshots and order rejections.
package domain

import (
	"fmt"
	"math"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is one OHLCV observation. Aux carries optional named columns such as
// funding_rate or open_interest.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Aux       map[string]float64
}

// Validate checks the OHLC invariant low <= open, close <= high and a
// non-negative volume.
func (b Bar) Validate() error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at %s", ErrInvalidBar, b.Timestamp.Format(time.RFC3339))
		}
	}
	if b.Low > b.Open || b.Low > b.Close || b.High < b.Open || b.High < b.Close || b.Low > b.High {
		return fmt.Errorf("%w: o=%v h=%v l=%v c=%v at %s",
			ErrInvalidBar, b.Open, b.High, b.Low, b.Close, b.Timestamp.Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume %v at %s", ErrInvalidBar, b.Volume, b.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// Side is the direction of an order or position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign returns +1 for longs and -1 for shorts.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideShort {
		return SideLong
	}
	return SideShort
}

// OrderKind selects how an entry order is filled.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindStop   OrderKind = "stop"
	OrderKindLimit  OrderKind = "limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// TrailAnchor is the price a trailing stop follows.
type TrailAnchor string

const (
	// TrailExtreme follows the bar high for longs and the bar low for shorts.
	TrailExtreme TrailAnchor = "extreme"
	// TrailClose follows the bar close.
	TrailClose TrailAnchor = "close"
)

// Trailing describes a trailing stop attached to a position.
type Trailing struct {
	Anchor TrailAnchor
	Offset float64
}

// Order is an entry intent. Size must be a positive whole number of units.
// Price is the trigger level for stop and limit orders and is ignored for
// market orders. Zero SL or TP means no level.
type Order struct {
	ID       int
	Side     Side
	Kind     OrderKind
	Size     float64
	Price    float64
	SL       float64
	TP       float64
	Trailing *Trailing
	Tag      string
	Bar      int
	Status   OrderStatus
}

// FillAction tells whether a fill opened or closed a position.
type FillAction string

const (
	FillEntry FillAction = "entry"
	FillExit  FillAction = "exit"
)

// Fill is the execution of an order (or a protective level) on a bar.
type Fill struct {
	OrderID    int
	PositionID int
	Side       Side
	Action     FillAction
	Price      float64
	Units      int
	Bar        int
	Time       time.Time
	Commission float64
}

// ---------------------------------------------------------------------------
// Positions and trades
// ---------------------------------------------------------------------------

// ExitReason records what closed a trade.
type ExitReason string

const (
	ExitStop     ExitReason = "stop"
	ExitTake     ExitReason = "take"
	ExitSignal   ExitReason = "signal"
	ExitTime     ExitReason = "time"
	ExitReversal ExitReason = "reversal"
)

// ClosedTrade is an immutable record of a completed round trip. PnL is net
// of both commissions; PnLPct is PnL relative to the entry notional.
type ClosedTrade struct {
	PositionID   int
	Side         Side
	Units        int
	EntryPrice   float64
	ExitPrice    float64
	EntryBar     int
	ExitBar      int
	EntryTime    time.Time
	ExitTime     time.Time
	PnL          float64
	PnLPct       float64
	Commission   float64
	DurationBars int
	ExitReason   ExitReason
	Tag          string
}

// EquitySnapshot is the account state marked at a bar close.
type EquitySnapshot struct {
	Bar     int
	Time    time.Time
	Cash    float64
	Equity  float64
	OpenPnL float64
}

// ---------------------------------------------------------------------------
// Rejections
// ---------------------------------------------------------------------------

// RejectCode classifies a rejected order.
type RejectCode string

const (
	RejectInvalidSize         RejectCode = "InvalidSize"
	RejectInvalidStop         RejectCode = "InvalidStop"
	RejectConcurrencyExceeded RejectCode = "ConcurrencyExceeded"
	RejectInsufficientMargin  RejectCode = "InsufficientMargin"
	RejectCooldownActive      RejectCode = "CooldownActive"
)

// Rejection is a non-fatal order error attributed to a bar.
type Rejection struct {
	Bar     int
	Time    time.Time
	OrderID int
	Code    RejectCode
	Reason  string
}

func (r Rejection) Error() string {
	return fmt.Sprintf("order %d rejected at bar %d: %s: %s", r.OrderID, r.Bar, r.Code, r.Reason)
}
