// Converts a CSV bar frame into a parquet, sqlite or clickhouse bar store.
//
// Usage:
//
//	go run ./cmd/rbi-ingest -in data/BTC-USD-15m.csv -source parquet -path data/bars [-symbol BTC-USD] [-tf 15m]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"rbi/internal/config"
	"rbi/internal/ingest"
	"rbi/internal/series"
	"rbi/internal/store"
	"rbi/internal/util"
)

func main() {
	in := flag.String("in", "", "input CSV file")
	source := flag.String("source", store.KindParquet, "target store: parquet, sqlite or clickhouse")
	path := flag.String("path", "", "store path (parquet directory or sqlite file)")
	symbol := flag.String("symbol", "BTC-USD", "symbol to write under")
	tf := flag.String("tf", "15m", "bar timeframe")
	cfgPath := flag.String("config", "", "optional run configuration for clickhouse settings and logging")
	flag.Parse()

	if *in == "" {
		log.Fatal("-in is required")
	}

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	interval, err := util.ParseTimeframe(*tf)
	if err != nil {
		log.Fatalf("bad -tf: %v", err)
	}

	bars, err := ingest.ReadCSVFile(*in)
	if err != nil {
		log.Fatalf("read: %v", err)
	}
	s, err := series.New(bars)
	if err != nil {
		log.Fatalf("validate: %v", err)
	}
	times := make([]time.Time, s.Len())
	for i := range times {
		times[i] = s.Time(i)
	}
	if got := util.InferInterval(times); got != 0 && got != interval {
		logger.Warn("bar spacing does not match timeframe", "timeframe", *tf, "inferred", got.String())
	}

	ctx := context.Background()
	st, err := store.Open(ctx, store.Options{Kind: *source, Path: *path, ClickHouse: cfg.Data.ClickHouse})
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	if err := st.WriteBars(ctx, *symbol, *tf, bars); err != nil {
		log.Fatalf("write: %v", err)
	}
	logger.Info("ingest complete", "symbol", *symbol, "timeframe", *tf, "bars", len(bars),
		"columns", s.Columns(), "store", *source)
}
