package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"rbi/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ BarStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol    TEXT    NOT NULL,
	timeframe TEXT    NOT NULL,
	ts        INTEGER NOT NULL,
	open      REAL    NOT NULL,
	high      REAL    NOT NULL,
	low       REAL    NOT NULL,
	close     REAL    NOT NULL,
	volume    REAL    NOT NULL,
	PRIMARY KEY (symbol, timeframe, ts)
);
CREATE TABLE IF NOT EXISTS bar_aux (
	symbol    TEXT    NOT NULL,
	timeframe TEXT    NOT NULL,
	ts        INTEGER NOT NULL,
	name      TEXT    NOT NULL,
	value     REAL    NOT NULL,
	PRIMARY KEY (symbol, timeframe, ts, name)
);`

// SQLiteStore implements BarStore backed by a SQLite database. Aux values
// live in a side table; NaN values are not stored.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteBars upserts bars and their aux values in one transaction.
func (s *SQLiteStore) WriteBars(ctx context.Context, symbol, timeframe string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	symbol, timeframe = strings.ToUpper(symbol), strings.ToLower(timeframe)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	barStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO bars (symbol, timeframe, ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer barStmt.Close()
	clearStmt, err := tx.PrepareContext(ctx,
		`DELETE FROM bar_aux WHERE symbol = ? AND timeframe = ? AND ts = ?`)
	if err != nil {
		return err
	}
	defer clearStmt.Close()
	auxStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bar_aux (symbol, timeframe, ts, name, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer auxStmt.Close()

	for _, b := range bars {
		ts := b.Timestamp.UnixMilli()
		if _, err := barStmt.ExecContext(ctx, symbol, timeframe, ts, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("insert bar %s: %w", b.Timestamp.Format(time.RFC3339), err)
		}
		if _, err := clearStmt.ExecContext(ctx, symbol, timeframe, ts); err != nil {
			return err
		}
		for name, v := range b.Aux {
			if math.IsNaN(v) {
				continue
			}
			if _, err := auxStmt.ExecContext(ctx, symbol, timeframe, ts, name, v); err != nil {
				return fmt.Errorf("insert aux %s: %w", name, err)
			}
		}
	}
	return tx.Commit()
}

// ReadBars returns bars in [start, end] ordered by timestamp.
func (s *SQLiteStore) ReadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	symbol, timeframe = strings.ToUpper(symbol), strings.ToLower(timeframe)
	lo, hi := start.UnixMilli(), end.UnixMilli()

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, volume FROM bars
		 WHERE symbol = ? AND timeframe = ? AND ts BETWEEN ? AND ? ORDER BY ts`,
		symbol, timeframe, lo, hi)
	if err != nil {
		return nil, err
	}
	var bars []domain.Bar
	index := make(map[int64]int)
	for rows.Next() {
		var ts int64
		var b domain.Bar
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			rows.Close()
			return nil, err
		}
		b.Timestamp = time.UnixMilli(ts).UTC()
		index[ts] = len(bars)
		bars = append(bars, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	aux, err := s.db.QueryContext(ctx,
		`SELECT ts, name, value FROM bar_aux
		 WHERE symbol = ? AND timeframe = ? AND ts BETWEEN ? AND ?`,
		symbol, timeframe, lo, hi)
	if err != nil {
		return nil, err
	}
	defer aux.Close()
	for aux.Next() {
		var ts int64
		var name string
		var v float64
		if err := aux.Scan(&ts, &name, &v); err != nil {
			return nil, err
		}
		i, ok := index[ts]
		if !ok {
			continue
		}
		if bars[i].Aux == nil {
			bars[i].Aux = make(map[string]float64)
		}
		bars[i].Aux[name] = v
	}
	return bars, aux.Err()
}

// ListSymbols returns the distinct symbols in the bars table.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
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
