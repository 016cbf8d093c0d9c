package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"rbi/internal/domain"
	"rbi/internal/util"
)

// Compile-time interface check.
var _ BarStore = (*ClickHouseStore)(nil)

// ClickHouseOptions configures the ClickHouse connection.
type ClickHouseOptions struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ClickHouseStore implements BarStore on a ReplacingMergeTree table. Rewrites
// of the same bar collapse on merge; reads use FINAL.
type ClickHouseStore struct {
	conn  clickhouse.Conn
	table string
}

// NewClickHouseStore connects, pings with retry, and ensures the database
// and table exist.
func NewClickHouseStore(ctx context.Context, opts ClickHouseOptions) (*ClickHouseStore, error) {
	if opts.Database == "" {
		opts.Database = "rbi"
	}
	if opts.Table == "" {
		opts.Table = "bars"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := util.Retry(ctx, 3, 500*time.Millisecond, func() error { return conn.Ping(ctx) }); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", opts.Addr, err)
	}
	s := &ClickHouseStore{conn: conn, table: opts.Database + "." + opts.Table}
	if err := s.ensureSchema(ctx, opts.Database); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseStore) ensureSchema(ctx context.Context, db string) error {
	if err := s.conn.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+db); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
		symbol       LowCardinality(String),
		timeframe    LowCardinality(String),
		open_time_ms Int64,
		open         Float64,
		high         Float64,
		low          Float64,
		close        Float64,
		volume       Float64,
		aux          Map(String, Float64),
		version      UInt64
	) ENGINE = ReplacingMergeTree(version)
	ORDER BY (symbol, timeframe, open_time_ms)`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// WriteBars batch-inserts bars. NaN aux values are dropped.
func (s *ClickHouseStore) WriteBars(ctx context.Context, symbol, timeframe string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	version := uint64(time.Now().UnixNano())
	symbol, timeframe = strings.ToUpper(symbol), strings.ToLower(timeframe)
	for _, b := range bars {
		aux := make(map[string]float64, len(b.Aux))
		for k, v := range b.Aux {
			if !math.IsNaN(v) {
				aux[k] = v
			}
		}
		if err := batch.Append(symbol, timeframe, b.Timestamp.UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume, aux, version); err != nil {
			batch.Abort()
			return fmt.Errorf("append bar %s: %w", b.Timestamp.Format(time.RFC3339), err)
		}
	}
	return batch.Send()
}

// ReadBars returns deduplicated bars in [start, end].
func (s *ClickHouseStore) ReadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	q := `SELECT open_time_ms, open, high, low, close, volume, aux FROM ` + s.table + ` FINAL
		WHERE symbol = ? AND timeframe = ? AND open_time_ms BETWEEN ? AND ?
		ORDER BY open_time_ms`
	rows, err := s.conn.Query(ctx, q, strings.ToUpper(symbol), strings.ToLower(timeframe),
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			ts  int64
			b   domain.Bar
			aux map[string]float64
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &aux); err != nil {
			return nil, err
		}
		b.Timestamp = time.UnixMilli(ts).UTC()
		if len(aux) > 0 {
			b.Aux = aux
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListSymbols returns the distinct symbols in the table.
func (s *ClickHouseStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, "SELECT DISTINCT symbol FROM "+s.table+" ORDER BY symbol")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// Close closes the connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
