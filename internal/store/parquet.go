package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"rbi/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for one bar.
type BarRecord struct {
	Timestamp int64       `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64     `parquet:"open"`
	High      float64     `parquet:"high"`
	Low       float64     `parquet:"low"`
	Close     float64     `parquet:"close"`
	Volume    float64     `parquet:"volume"`
	Aux       []AuxRecord `parquet:"aux"`
}

// AuxRecord is one named auxiliary value of a bar.
type AuxRecord struct {
	Name  string  `parquet:"name"`
	Value float64 `parquet:"value"`
}

func toRecord(b domain.Bar) BarRecord {
	r := BarRecord{
		Timestamp: b.Timestamp.UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
	names := make([]string, 0, len(b.Aux))
	for k := range b.Aux {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		r.Aux = append(r.Aux, AuxRecord{Name: k, Value: b.Aux[k]})
	}
	return r
}

func fromRecord(r BarRecord) domain.Bar {
	b := domain.Bar{
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
	if len(r.Aux) > 0 {
		b.Aux = make(map[string]float64, len(r.Aux))
		for _, a := range r.Aux {
			b.Aux[a.Name] = a.Value
		}
	}
	return b
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars to Parquet files grouped by year, merging with what
// is already on disk:
//
//	<DataDir>/<SYMBOL>/<timeframe>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, symbol, timeframe string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	groups := make(map[int][]BarRecord)
	for _, b := range bars {
		y := b.Timestamp.UTC().Year()
		groups[y] = append(groups[y], toRecord(b))
	}

	for year, records := range groups {
		path := s.barPath(symbol, timeframe, year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%s/%d: %w", symbol, timeframe, year, err)
		}
	}
	return nil
}

// ReadBars reads bars from the year files covering [start, end].
func (s *ParquetStore) ReadBars(_ context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	years, err := s.years(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	var bars []domain.Bar
	for _, year := range years {
		if year < start.UTC().Year() || year > end.UTC().Year() {
			continue
		}
		path := s.barPath(symbol, timeframe, year)
		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range records {
			b := fromRecord(r)
			if inRange(b.Timestamp, start, end) {
				bars = append(bars, b)
			}
		}
	}
	return bars, nil
}

// years lists the year files present for symbol and timeframe, ascending.
func (s *ParquetStore) years(symbol, timeframe string) ([]int, error) {
	dir := filepath.Dir(s.barPath(symbol, timeframe, 0))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		y, err := strconv.Atoi(strings.TrimSuffix(name, ".parquet"))
		if err != nil {
			continue
		}
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// ListSymbols lists the symbol directories under DataDir.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Close is a no-op.
func (s *ParquetStore) Close() error { return nil }

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<SYMBOL>/<timeframe>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, timeframe string, year int) string {
	return filepath.Join(s.DataDir, strings.ToUpper(symbol), strings.ToLower(timeframe), fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by timestamp, preferring new
// records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
