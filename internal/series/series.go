// Package series provides the immutable, column-major bar store the engine
// runs over. Column reads hand out copies, so callers cannot write through
// to the stored bars.
package series

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"rbi/internal/domain"
)

// Canonical OHLCV column names.
const (
	Open   = "Open"
	High   = "High"
	Low    = "Low"
	Close  = "Close"
	Volume = "Volume"
)

var ohlcv = []string{Open, High, Low, Close, Volume}

// Series is an ordered, validated sequence of bars stored column-wise. All
// columns have the same length as the timestamp index. A Series never
// changes after construction.
type Series struct {
	times []time.Time
	cols  map[string][]float64
	names []string
}

// New validates bars and builds a Series. Bars must be in strictly
// increasing timestamp order and satisfy the OHLC invariant. Aux columns are
// the union of every bar's Aux keys; a bar missing a key gets NaN.
func New(bars []domain.Bar) (*Series, error) {
	n := len(bars)
	s := &Series{
		times: make([]time.Time, n),
		cols:  make(map[string][]float64, len(ohlcv)),
	}
	for _, name := range ohlcv {
		s.cols[name] = make([]float64, n)
	}

	auxNames := make(map[string]struct{})
	for _, b := range bars {
		for k := range b.Aux {
			auxNames[k] = struct{}{}
		}
	}
	aux := make([]string, 0, len(auxNames))
	for k := range auxNames {
		for _, base := range ohlcv {
			if strings.EqualFold(k, base) {
				return nil, fmt.Errorf("%w: aux column %q shadows %s", domain.ErrInvalidBar, k, base)
			}
		}
		aux = append(aux, k)
	}
	sort.Strings(aux)
	for _, k := range aux {
		s.cols[k] = make([]float64, n)
	}
	s.names = append(append([]string{}, ohlcv...), aux...)

	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: bar %d at %s is not after %s", domain.ErrNonMonotonicTimestamps,
				i, b.Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339))
		}
		s.times[i] = b.Timestamp
		s.cols[Open][i] = b.Open
		s.cols[High][i] = b.High
		s.cols[Low][i] = b.Low
		s.cols[Close][i] = b.Close
		s.cols[Volume][i] = b.Volume
		for _, k := range aux {
			v, ok := b.Aux[k]
			if !ok {
				v = math.NaN()
			}
			s.cols[k][i] = v
		}
	}
	return s, nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.times) }

// Columns returns the column names: OHLCV first, then aux columns sorted.
func (s *Series) Columns() []string {
	return append([]string(nil), s.names...)
}

// HasColumn reports whether name resolves to a column.
func (s *Series) HasColumn(name string) bool {
	_, ok := s.resolve(name)
	return ok
}

// Column returns a copy of the full column. Names match exactly first and
// then case-insensitively.
func (s *Series) Column(name string) ([]float64, error) {
	c, err := s.raw(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(c), nil
}

func (s *Series) raw(name string) ([]float64, error) {
	key, ok := s.resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownColumn, name)
	}
	return s.cols[key], nil
}

// Window returns up to n values of column name ending at index end
// (inclusive), copied. Fewer values are returned near the start of the
// series.
func (s *Series) Window(name string, end, n int) ([]float64, error) {
	c, err := s.raw(name)
	if err != nil {
		return nil, err
	}
	if end < 0 || end >= len(c) {
		return nil, fmt.Errorf("series: window end %d out of range [0,%d)", end, len(c))
	}
	if n <= 0 {
		return []float64{}, nil
	}
	start := end - n + 1
	if start < 0 {
		start = 0
	}
	return slices.Clone(c[start : end+1]), nil
}

// Time returns the timestamp of bar i.
func (s *Series) Time(i int) time.Time { return s.times[i] }

// Bar materialises bar i.
func (s *Series) Bar(i int) domain.Bar {
	b := domain.Bar{
		Timestamp: s.times[i],
		Open:      s.cols[Open][i],
		High:      s.cols[High][i],
		Low:       s.cols[Low][i],
		Close:     s.cols[Close][i],
		Volume:    s.cols[Volume][i],
	}
	if len(s.names) > len(ohlcv) {
		b.Aux = make(map[string]float64, len(s.names)-len(ohlcv))
		for _, k := range s.names[len(ohlcv):] {
			b.Aux[k] = s.cols[k][i]
		}
	}
	return b
}

// Bars materialises every bar.
func (s *Series) Bars() []domain.Bar {
	out := make([]domain.Bar, s.Len())
	for i := range out {
		out[i] = s.Bar(i)
	}
	return out
}

// Slice returns the bars in [from, to) as a new Series sharing storage.
func (s *Series) Slice(from, to int) (*Series, error) {
	if from < 0 || to > s.Len() || from > to {
		return nil, fmt.Errorf("series: slice [%d,%d) out of range [0,%d]", from, to, s.Len())
	}
	out := &Series{
		times: s.times[from:to:to],
		cols:  make(map[string][]float64, len(s.cols)),
		names: s.names,
	}
	for k, c := range s.cols {
		out.cols[k] = c[from:to:to]
	}
	return out, nil
}

// Concat joins a and b. Both must carry the same columns and b must start
// strictly after a ends.
func Concat(a, b *Series) (*Series, error) {
	if len(a.names) != len(b.names) {
		return nil, fmt.Errorf("%w: column sets differ", domain.ErrUnknownColumn)
	}
	for i := range a.names {
		if a.names[i] != b.names[i] {
			return nil, fmt.Errorf("%w: %q vs %q", domain.ErrUnknownColumn, a.names[i], b.names[i])
		}
	}
	if a.Len() > 0 && b.Len() > 0 && !b.times[0].After(a.times[a.Len()-1]) {
		return nil, fmt.Errorf("%w: concat boundary", domain.ErrNonMonotonicTimestamps)
	}
	n := a.Len() + b.Len()
	out := &Series{
		times: make([]time.Time, 0, n),
		cols:  make(map[string][]float64, len(a.cols)),
		names: a.names,
	}
	out.times = append(append(out.times, a.times...), b.times...)
	for _, k := range a.names {
		c := make([]float64, 0, n)
		out.cols[k] = append(append(c, a.cols[k]...), b.cols[k]...)
	}
	return out, nil
}

// Fingerprint hashes the timestamps, column names and the bit patterns of
// every value. Equal series produce equal fingerprints.
func (s *Series) Fingerprint() string {
	if s.Len() == 0 {
		return "empty"
	}
	buf := make([]byte, 0, 8*s.Len()*(len(s.names)+1)+64)
	for _, ts := range s.times {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(ts.UnixNano()))
	}
	for _, k := range s.names {
		buf = append(buf, k...)
		buf = append(buf, 0)
		for _, v := range s.cols[k] {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return fmt.Sprintf("%d|%s", s.Len(), uuid.NewSHA1(uuid.NameSpaceOID, buf))
}

func (s *Series) resolve(name string) (string, bool) {
	if _, ok := s.cols[name]; ok {
		return name, true
	}
	for _, k := range s.names {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}
