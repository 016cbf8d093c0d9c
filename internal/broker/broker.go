// Package broker defines the Broker interface the engine settles fills
// against and provides the simulated cash/equity ledger used for backtests.
package broker

import (
	"time"

	"rbi/internal/domain"
)

// Broker abstracts the account side of a run: cash, commissions, margin and
// mark-to-market.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// Open settles an entry fill for a new position and returns the
	// commission charged.
	Open(positionID int, side domain.Side, units int, price float64) (commission float64, err error)

	// Close settles the exit of an open position and returns the commission
	// charged and the gross (pre-commission) realized PnL.
	Close(positionID int, price float64) (commission, gross float64, err error)

	// Cash returns the current cash balance.
	Cash() float64

	// Equity returns cash plus the signed value of every open position
	// marked at price.
	Equity(price float64) float64

	// MaxUnits returns the largest whole number of units an entry at price
	// could buy with the free margin available when the book is marked at
	// mark.
	MaxUnits(price, mark float64) int

	// Mark records the equity snapshot at a bar close.
	Mark(bar int, ts time.Time, close float64) domain.EquitySnapshot

	// Reconcile checks the ledger against the position manager's open
	// positions and the accounting identity. Any mismatch is an
	// ErrLedgerDesync.
	Reconcile(open []*domain.Position) error
}
