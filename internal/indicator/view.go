package indicator

import (
	"fmt"
	"math"
	"slices"

	"rbi/internal/domain"
)

// CausalError is raised (as a panic) when a strategy reads past the current
// bar. The run driver recovers it and aborts the run.
type CausalError struct {
	Name    string
	Current int
	Index   int
}

func (e *CausalError) Error() string {
	return fmt.Sprintf("%s: read of bar %d at bar %d", e.Name, e.Index, e.Current)
}

func (e *CausalError) Unwrap() error { return domain.ErrCausalViolation }

// View is a handle truncated to [0..t]. Reads beyond t panic with a
// *CausalError; reads inside the warm-up or before bar 0 return NaN.
type View struct {
	h *Handle
	t int
}

// Index returns the current bar.
func (v View) Index() int { return v.t }

// Len returns the number of visible bars.
func (v View) Len() int { return v.t + 1 }

// Now returns the value at the current bar.
func (v View) Now() float64 { return v.h.At(v.t) }

// Ago returns the value k bars before the current bar.
func (v View) Ago(k int) float64 {
	if k < 0 {
		panic(&CausalError{Name: v.h.name, Current: v.t, Index: v.t - k})
	}
	return v.h.At(v.t - k)
}

// At returns the value at absolute bar i.
func (v View) At(i int) float64 {
	if i > v.t {
		panic(&CausalError{Name: v.h.name, Current: v.t, Index: i})
	}
	return v.h.At(i)
}

// Ready reports whether the current value is defined.
func (v View) Ready() bool { return !math.IsNaN(v.Now()) }

// ReadyAgo reports whether the value k bars back is defined.
func (v View) ReadyAgo(k int) bool { return !math.IsNaN(v.Ago(k)) }

// Window returns a copy of up to n values ending at the current bar.
func (v View) Window(n int) []float64 {
	end := v.t + 1
	start := end - n
	if start < 0 {
		start = 0
	}
	if start >= end {
		return []float64{}
	}
	return slices.Clone(v.h.values[start:end])
}
