// Runs the configured strategies over one bar series and prints their
// statistics.
//
// Usage:
//
//	go run ./cmd/rbi-backtest [-config config/rbi.yaml] [-list]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"rbi/internal/config"
	"rbi/internal/domain"
	"rbi/internal/engine"
	"rbi/internal/ingest"
	"rbi/internal/series"
	"rbi/internal/store"
	"rbi/internal/strategy"
	"rbi/internal/strategy/builtins"
	"rbi/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "path to the run configuration (default $RBI_CONFIG or config/rbi.yaml)")
	list := flag.Bool("list", false, "list the registered strategies and exit")
	flag.Parse()

	registry := strategy.NewRegistry()
	builtins.Register(registry)
	if *list {
		for _, name := range registry.List() {
			d, _ := registry.Get(name)
			fmt.Printf("%-20s %s\n", name, d.Description)
		}
		return
	}

	path := *cfgPath
	if path == "" {
		path = "config/rbi.yaml"
		if p := os.Getenv("RBI_CONFIG"); p != "" {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	eng, err := engine.New(cfg.Engine, engine.WithLogger(logger), engine.WithSink(engine.SlogSink(logger)))
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	ctx := context.Background()
	s, err := loadSeries(ctx, cfg, registry, eng, logger)
	if err != nil {
		log.Fatalf("loading bars: %v", err)
	}
	bt := strategy.NewBacktester(nil, registry, eng, logger)

	results := make([]*engine.Result, len(cfg.Strategies))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, spec := range cfg.Strategies {
		g.Go(func() error {
			res, err := bt.RunSeries(s, spec.Name, spec.Params)
			if err != nil && res == nil {
				return fmt.Errorf("%s: %w", spec.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("backtest: %v", err)
	}

	failed := false
	for _, res := range results {
		printResult(res)
		if res.Err != nil {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func loadSeries(ctx context.Context, cfg *config.Config, registry *strategy.Registry, eng *engine.Engine, logger *slog.Logger) (*series.Series, error) {
	start, end, err := cfg.Data.Range()
	if err != nil {
		return nil, err
	}
	if cfg.Data.Source == "csv" {
		bars, err := ingest.ReadCSVFile(cfg.Data.Path)
		if err != nil {
			return nil, err
		}
		s, err := series.New(within(bars, start, end))
		if err != nil {
			return nil, err
		}
		logger.Info("bars loaded", "path", cfg.Data.Path, "bars", s.Len())
		return s, nil
	}

	st, err := store.Open(ctx, store.Options{Kind: cfg.Data.Source, Path: cfg.Data.Path, ClickHouse: cfg.Data.ClickHouse})
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return strategy.NewBacktester(st, registry, eng, logger).Load(ctx, cfg.Data.Symbol, cfg.Data.Timeframe, start, end)
}

func within(bars []domain.Bar, start, end time.Time) []domain.Bar {
	out := bars[:0:0]
	for _, b := range bars {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out
}

func printResult(res *engine.Result) {
	fmt.Printf("== %s  run %s\n", res.Strategy, res.RunID)
	for _, k := range res.Params.Keys() {
		fmt.Printf("   %s = %g\n", k, res.Params[k])
	}
	fmt.Print(res.Stats.String())
	if counts := res.RejectionsByCode(); len(counts) > 0 {
		codes := make([]string, 0, len(counts))
		for c := range counts {
			codes = append(codes, string(c))
		}
		sort.Strings(codes)
		fmt.Print("Rejections  ")
		for _, c := range codes {
			fmt.Printf(" %s=%d", c, counts[domain.RejectCode(c)])
		}
		fmt.Println()
	}
	if res.Err != nil {
		fmt.Printf("ABORTED: %v\n", res.Err)
	}
	fmt.Println()
}
