package domain

import "errors"

// Input errors, raised while building a series.
var (
	ErrUnknownColumn          = errors.New("unknown column")
	ErrNonMonotonicTimestamps = errors.New("non-monotonic timestamps")
	ErrInvalidBar             = errors.New("invalid bar")
)

// Registration errors, raised during strategy Init.
var (
	ErrInvalidIndicatorShape = errors.New("invalid indicator shape")
	ErrNameCollision         = errors.New("indicator name collision")
)

// Invariant violations. These abort a run.
var (
	ErrLedgerDesync          = errors.New("ledger desync")
	ErrStateMachineViolation = errors.New("position state machine violation")
	ErrCausalViolation       = errors.New("causal violation")
)

var (
	ErrInvalidConfig   = errors.New("invalid config")
	ErrUnknownStrategy = errors.New("unknown strategy")
)
