// Package store persists and retrieves OHLCV bar archives. Bars are keyed by
// symbol and timeframe; aux columns travel with each bar.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rbi/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, replacing bars with the same
	// timestamp.
	WriteBars(ctx context.Context, symbol, timeframe string, bars []domain.Bar) error

	// ReadBars returns bars for symbol and timeframe within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols in the store.
	ListSymbols(ctx context.Context) ([]string, error)

	// Close releases the store's resources.
	Close() error
}

// Kinds accepted by Open.
const (
	KindParquet    = "parquet"
	KindSQLite     = "sqlite"
	KindClickHouse = "clickhouse"
)

// Options selects and configures a BarStore.
type Options struct {
	Kind       string
	Path       string
	ClickHouse ClickHouseOptions
}

// Open returns the BarStore described by opts.
func Open(ctx context.Context, opts Options) (BarStore, error) {
	switch strings.ToLower(opts.Kind) {
	case KindParquet:
		return NewParquetStore(opts.Path), nil
	case KindSQLite:
		return NewSQLiteStore(opts.Path)
	case KindClickHouse:
		return NewClickHouseStore(ctx, opts.ClickHouse)
	}
	return nil, fmt.Errorf("%w: unknown store kind %q", domain.ErrInvalidConfig, opts.Kind)
}

func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}
