package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rbi/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rbi.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RBI_DATA_PATH", "RBI_DATA_SOURCE", "LOG_LEVEL", "CLICKHOUSE_ADDR",
		"CLICKHOUSE_USER", "CLICKHOUSE_PASSWORD", "RBI_COMMISSION_RATE", "RBI_CASH"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
data:
  source: parquet
  path: /tmp/rbi/bars
  symbol: BTC-USD
  timeframe: 15m
  start: "2024-01-01"
  end: "2024-06-30 23:45:00"
engine:
  cash: 50000
  commission_rate: 0.0005
  exclusive_orders: true
strategies:
  - name: sma-cross
    params:
      fast: 5
      slow: 20
  - name: vortex
logging:
  level: debug
  format: text
workers: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Data --
	if cfg.Data.Source != "parquet" {
		t.Errorf("Data.Source = %q, want %q", cfg.Data.Source, "parquet")
	}
	if cfg.Data.Path != "/tmp/rbi/bars" {
		t.Errorf("Data.Path = %q, want %q", cfg.Data.Path, "/tmp/rbi/bars")
	}
	start, end, err := cfg.Data.Range()
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if want := time.Date(2024, 6, 30, 23, 45, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}

	// -- Engine: omitted keys keep their defaults --
	if cfg.Engine.Cash != 50000 {
		t.Errorf("Engine.Cash = %v, want 50000", cfg.Engine.Cash)
	}
	if cfg.Engine.CommissionRate != 0.0005 {
		t.Errorf("Engine.CommissionRate = %v, want 0.0005", cfg.Engine.CommissionRate)
	}
	if cfg.Engine.Margin != 1 {
		t.Errorf("Engine.Margin = %v, want 1", cfg.Engine.Margin)
	}
	if cfg.Engine.MaxConcurrent != 1 {
		t.Errorf("Engine.MaxConcurrent = %v, want 1", cfg.Engine.MaxConcurrent)
	}
	if !cfg.Engine.ExclusiveOrders {
		t.Error("Engine.ExclusiveOrders = false, want true")
	}

	// -- Strategies --
	if len(cfg.Strategies) != 2 {
		t.Fatalf("Strategies = %d, want 2", len(cfg.Strategies))
	}
	if cfg.Strategies[0].Name != "sma-cross" || cfg.Strategies[0].Params["slow"] != 20 {
		t.Errorf("Strategies[0] = %+v", cfg.Strategies[0])
	}
	if cfg.Strategies[1].Params != nil {
		t.Errorf("Strategies[1].Params = %v, want nil", cfg.Strategies[1].Params)
	}

	// -- Logging / workers --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
data:
  source: csv
  path: /original/btc.csv
strategies:
  - name: sma-cross
`)
	t.Setenv("RBI_DATA_PATH", "/env/btc.csv")
	t.Setenv("RBI_CASH", "25000")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CLICKHOUSE_ADDR", "ch:9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Data.Path != "/env/btc.csv" {
		t.Errorf("Data.Path = %q, want %q (env override)", cfg.Data.Path, "/env/btc.csv")
	}
	if cfg.Engine.Cash != 25000 {
		t.Errorf("Engine.Cash = %v, want 25000 (env override)", cfg.Engine.Cash)
	}
	// commission_rate should remain the default since no override was set.
	if cfg.Engine.CommissionRate != 0.001 {
		t.Errorf("Engine.CommissionRate = %v, want 0.001", cfg.Engine.CommissionRate)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Data.ClickHouse.Addr != "ch:9000" {
		t.Errorf("ClickHouse.Addr = %q, want ch:9000", cfg.Data.ClickHouse.Addr)
	}

	t.Setenv("RBI_COMMISSION_RATE", "lots")
	if _, err := Load(path); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("bad numeric override err = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := Default()
		c.Data.Path = "btc.csv"
		c.Strategies = []StrategySpec{{Name: "sma-cross"}}
		return c
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	tests := []struct {
		name string
		mod  func(c *Config)
	}{
		{"unknown source", func(c *Config) { c.Data.Source = "feather" }},
		{"missing path", func(c *Config) { c.Data.Path = "" }},
		{"no strategies", func(c *Config) { c.Strategies = nil }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"negative cash", func(c *Config) { c.Engine.Cash = -1 }},
		{"end before start", func(c *Config) { c.Data.Start, c.Data.End = "2024-02-01", "2024-01-01" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mod(c)
			if err := c.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
