package domain

import (
	"fmt"
	"time"
)

// PositionState is a node in the position lifecycle graph:
//
//	pending -> open -> closed
//	pending -> cancelled
type PositionState string

const (
	PositionPending   PositionState = "pending"
	PositionOpen      PositionState = "open"
	PositionClosed    PositionState = "closed"
	PositionCancelled PositionState = "cancelled"
)

var positionTransitions = map[PositionState][]PositionState{
	PositionPending: {PositionOpen, PositionCancelled},
	PositionOpen:    {PositionClosed},
}

// Position is a slot in the order manager. It is created pending when an
// entry order is accepted and becomes open when the entry fills.
type Position struct {
	ID              int
	OrderID         int
	Side            Side
	Units           int
	EntryPrice      float64
	EntryBar        int
	EntryTime       time.Time
	EntryCommission float64
	SL              float64
	TP              float64
	Trailing        *Trailing
	Tag             string
	State           PositionState
}

// Transition moves the position to the given state or reports a violation of
// the lifecycle graph.
func (p *Position) Transition(to PositionState) error {
	for _, next := range positionTransitions[p.State] {
		if next == to {
			p.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: position %d %s -> %s", ErrStateMachineViolation, p.ID, p.State, to)
}

// Value returns the signed market value of the position at price.
func (p *Position) Value(price float64) float64 {
	return p.Side.Sign() * float64(p.Units) * price
}

// UnrealizedPnL returns the gross open profit at price, before commissions.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return p.Side.Sign() * float64(p.Units) * (price - p.EntryPrice)
}
