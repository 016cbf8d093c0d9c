package engine

import (
	"fmt"
	"math"

	"rbi/internal/domain"
)

// Config holds the run options every strategy shares.
type Config struct {
	// Cash is the starting balance.
	Cash float64 `yaml:"cash"`
	// CommissionRate is charged on the notional of every fill.
	CommissionRate float64 `yaml:"commission_rate"`
	// Margin multiplies the cash required per unit of notional.
	Margin float64 `yaml:"margin"`
	// ExclusiveOrders makes every new entry cancel pending entries and close
	// open positions at the next open.
	ExclusiveOrders bool `yaml:"exclusive_orders"`
	// MaxConcurrent bounds the number of open positions.
	MaxConcurrent int `yaml:"max_concurrent"`
	// CapSizeByCash shrinks entries the ledger cannot afford instead of
	// rejecting them.
	CapSizeByCash bool `yaml:"cap_size_by_cash"`
}

// DefaultConfig returns the defaults: 1,000,000 cash, 0.1% commission, full
// margin and one position at a time.
func DefaultConfig() Config {
	return Config{
		Cash:           1_000_000,
		CommissionRate: 0.001,
		Margin:         1.0,
		MaxConcurrent:  1,
	}
}

// Validate rejects configurations the engine cannot run.
func (c Config) Validate() error {
	switch {
	case !(c.Cash > 0) || math.IsInf(c.Cash, 0):
		return fmt.Errorf("%w: cash must be positive, got %v", domain.ErrInvalidConfig, c.Cash)
	case c.CommissionRate < 0 || c.CommissionRate >= 1 || math.IsNaN(c.CommissionRate):
		return fmt.Errorf("%w: commission_rate must be in [0,1), got %v", domain.ErrInvalidConfig, c.CommissionRate)
	case !(c.Margin > 0) || c.Margin > 1:
		return fmt.Errorf("%w: margin must be in (0,1], got %v", domain.ErrInvalidConfig, c.Margin)
	case c.MaxConcurrent < 1:
		return fmt.Errorf("%w: max_concurrent must be >= 1, got %d", domain.ErrInvalidConfig, c.MaxConcurrent)
	}
	return nil
}

// Policy is what a strategy declares about its own position management.
// Zero fields defer to the run configuration or disable the feature.
type Policy struct {
	MaxConcurrent int
	// MaxBarsHeld forces a close at the open of entry_bar + MaxBarsHeld.
	MaxBarsHeld int
	// CooldownLosses consecutive losing trades suspend entries for
	// CooldownBars bars.
	CooldownLosses int
	CooldownBars   int
}

// PolicyDeclarer is implemented by strategies that declare a Policy.
type PolicyDeclarer interface {
	Policy() Policy
}

func (p Policy) merge(cfg Config) Policy {
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = cfg.MaxConcurrent
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 1
	}
	return p
}
