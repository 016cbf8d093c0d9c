// Package ingest reads OHLCV data frames from CSV into bars.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"rbi/internal/domain"
	"rbi/internal/series"
)

// ErrMissingColumn reports a required column absent from the header.
var ErrMissingColumn = errors.New("missing column")

// canonical maps folded header names to series column names.
var canonical = map[string]string{
	"datetime":  "datetime",
	"timestamp": "datetime",
	"date":      "date",
	"time":      "time",
	"open":      series.Open,
	"high":      series.High,
	"low":       series.Low,
	"close":     series.Close,
	"volume":    series.Volume,
}

var required = []string{"datetime", series.Open, series.High, series.Low, series.Close, series.Volume}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV parses a data frame with a header row. Header names are matched
// case-insensitively and canonicalized to datetime, Open, High, Low, Close
// and Volume; other named numeric columns become aux values. Unnamed columns
// are dropped. A UTF-8 or UTF-16 byte order mark is honoured. Rows are
// returned in timestamp order; duplicate timestamps are rejected.
func ReadCSV(r io.Reader) ([]domain.Bar, error) {
	dec := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(bufio.NewReader(dec))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty input", domain.ErrInvalidBar)
		}
		return nil, err
	}
	cols, aux, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if blank(rec) {
			continue
		}
		b, err := parseRow(rec, cols, aux)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Equal(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: duplicate timestamp %s", domain.ErrNonMonotonicTimestamps,
				bars[i].Timestamp.Format(time.RFC3339))
		}
	}
	return bars, nil
}

// mapHeader returns the record index of each required column and of each
// aux column by name. Separate date and time columns are combined into the
// datetime; either one alone stands for it. Under the "time" key cols holds
// the clock column to append to the date, if any.
func mapHeader(header []string) (map[string]int, map[string]int, error) {
	cols := make(map[string]int, len(required)+1)
	aux := make(map[string]int)
	seen := make(map[string]string)
	fold := cases.Fold()
	for i, raw := range header {
		name := strings.TrimSpace(raw)
		folded := fold.String(name)
		if name == "" || strings.HasPrefix(folded, "unnamed") {
			continue
		}
		if c, ok := canonical[folded]; ok {
			if _, dup := cols[c]; dup {
				return nil, nil, fmt.Errorf("%w: column %s appears twice", domain.ErrInvalidBar, c)
			}
			cols[c] = i
			continue
		}
		if prev, dup := seen[folded]; dup {
			return nil, nil, fmt.Errorf("%w: aux columns %q and %q collide", domain.ErrInvalidBar, prev, name)
		}
		seen[folded] = name
		aux[name] = i
	}
	if err := resolveTimestamp(cols); err != nil {
		return nil, nil, err
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return cols, aux, nil
}

func resolveTimestamp(cols map[string]int) error {
	date, hasDate := cols["date"]
	clock, hasClock := cols["time"]
	delete(cols, "date")
	if _, ok := cols["datetime"]; ok {
		if hasDate || hasClock {
			return fmt.Errorf("%w: datetime given alongside separate date or time columns", domain.ErrInvalidBar)
		}
		return nil
	}
	switch {
	case hasDate:
		cols["datetime"] = date
	case hasClock:
		cols["datetime"] = clock
		delete(cols, "time")
	}
	return nil
}

func parseRow(rec []string, cols, aux map[string]int) (domain.Bar, error) {
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	stamp := field(cols["datetime"])
	if i, ok := cols["time"]; ok {
		stamp += " " + field(i)
	}
	ts, err := ParseTime(stamp)
	if err != nil {
		return domain.Bar{}, err
	}
	b := domain.Bar{Timestamp: ts}
	for _, f := range []struct {
		col string
		dst *float64
	}{
		{series.Open, &b.Open},
		{series.High, &b.High},
		{series.Low, &b.Low},
		{series.Close, &b.Close},
		{series.Volume, &b.Volume},
	} {
		v, err := strconv.ParseFloat(field(cols[f.col]), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidBar, f.col, err)
		}
		*f.dst = v
	}
	for name, i := range aux {
		s := field(i)
		v := math.NaN()
		if s != "" {
			if v, err = strconv.ParseFloat(s, 64); err != nil {
				return domain.Bar{}, fmt.Errorf("%w: aux %s: %v", domain.ErrInvalidBar, name, err)
			}
		}
		if b.Aux == nil {
			b.Aux = make(map[string]float64, len(aux))
		}
		b.Aux[name] = v
	}
	return b, nil
}

// ParseTime parses a datetime cell: one of the common ISO layouts (UTC when
// no zone is given) or an integer Unix time in seconds or milliseconds.
func ParseTime(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if len(s) >= 13 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable datetime %q", domain.ErrInvalidBar, s)
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
