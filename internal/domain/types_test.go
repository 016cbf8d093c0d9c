package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestBarValidate(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 15, 0, 0, time.UTC)
	tests := []struct {
		name string
		bar  Bar
		ok   bool
	}{
		{"valid", Bar{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10}, true},
		{"flat", Bar{Timestamp: ts, Open: 100, High: 100, Low: 100, Close: 100}, true},
		{"low above open", Bar{Timestamp: ts, Open: 100, High: 101, Low: 100.5, Close: 100.7}, false},
		{"high below close", Bar{Timestamp: ts, Open: 100, High: 100.2, Low: 99, Close: 100.5}, false},
		{"negative volume", Bar{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: -1}, false},
		{"nan close", Bar{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: math.NaN()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bar.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() returned unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidBar) {
				t.Fatalf("Validate() = %v, want ErrInvalidBar", err)
			}
		})
	}
}

func TestSide(t *testing.T) {
	if SideLong.Sign() != 1 || SideShort.Sign() != -1 {
		t.Errorf("Sign() = (%v, %v), want (1, -1)", SideLong.Sign(), SideShort.Sign())
	}
	if SideLong.Opposite() != SideShort || SideShort.Opposite() != SideLong {
		t.Error("Opposite() did not swap sides")
	}
}

func TestPositionTransition(t *testing.T) {
	p := &Position{ID: 1, State: PositionPending}
	if err := p.Transition(PositionOpen); err != nil {
		t.Fatalf("pending -> open: %v", err)
	}
	if err := p.Transition(PositionClosed); err != nil {
		t.Fatalf("open -> closed: %v", err)
	}
	if err := p.Transition(PositionOpen); !errors.Is(err, ErrStateMachineViolation) {
		t.Errorf("closed -> open = %v, want ErrStateMachineViolation", err)
	}

	c := &Position{ID: 2, State: PositionPending}
	if err := c.Transition(PositionCancelled); err != nil {
		t.Fatalf("pending -> cancelled: %v", err)
	}
	if err := c.Transition(PositionClosed); !errors.Is(err, ErrStateMachineViolation) {
		t.Errorf("cancelled -> closed = %v, want ErrStateMachineViolation", err)
	}
}

func TestPositionValue(t *testing.T) {
	p := Position{Side: SideShort, Units: 10, EntryPrice: 100}
	if got := p.Value(90); got != -900 {
		t.Errorf("Value(90) = %v, want -900", got)
	}
	if got := p.UnrealizedPnL(90); got != 100 {
		t.Errorf("UnrealizedPnL(90) = %v, want 100", got)
	}
}

func TestRejectionError(t *testing.T) {
	r := Rejection{Bar: 3, OrderID: 7, Code: RejectInvalidSize, Reason: "size 0"}
	want := "order 7 rejected at bar 3: InvalidSize: size 0"
	if got := r.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
