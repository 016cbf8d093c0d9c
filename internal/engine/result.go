package engine

import "rbi/internal/domain"

// Result is everything a run produced. Slices are owned by the Result.
type Result struct {
	RunID      string
	Strategy   string
	Params     Params
	Config     Config
	Policy     Policy
	Trades     []domain.ClosedTrade
	Equity     []domain.EquitySnapshot
	Fills      []domain.Fill
	Orders     []domain.Order
	Rejections []domain.Rejection
	Stats      Stats
	// Err is the fatal error that aborted the run, if any.
	Err error
}

// RejectionsByCode counts rejections per code.
func (r *Result) RejectionsByCode() map[domain.RejectCode]int {
	out := make(map[domain.RejectCode]int)
	for _, rj := range r.Rejections {
		out[rj.Code]++
	}
	return out
}
