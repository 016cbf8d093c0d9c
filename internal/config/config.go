package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"rbi/internal/domain"
	"rbi/internal/engine"
	"rbi/internal/ingest"
	"rbi/internal/store"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for a backtest session.
type Config struct {
	Data       Data           `yaml:"data"`
	Engine     engine.Config  `yaml:"engine"`
	Strategies []StrategySpec `yaml:"strategies"`
	Logging    Logging        `yaml:"logging"`
	// Workers bounds how many strategy runs execute at once.
	Workers int `yaml:"workers"`
}

// Data selects the bar source.
type Data struct {
	// Source is csv, parquet, sqlite or clickhouse.
	Source     string                  `yaml:"source"`
	Path       string                  `yaml:"path"`
	Symbol     string                  `yaml:"symbol"`
	Timeframe  string                  `yaml:"timeframe"`
	Start      string                  `yaml:"start"`
	End        string                  `yaml:"end"`
	ClickHouse store.ClickHouseOptions `yaml:"clickhouse"`
}

// StrategySpec names a registered strategy and its parameter overrides.
type StrategySpec struct {
	Name   string        `yaml:"name"`
	Params engine.Params `yaml:"params"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for keys the file omits.
func Default() *Config {
	return &Config{
		Data: Data{
			Source:    "csv",
			Symbol:    "BTC-USD",
			Timeframe: "15m",
			ClickHouse: store.ClickHouseOptions{
				Addr:     "127.0.0.1:9000",
				Database: "rbi",
				Table:    "bars",
			},
		},
		Engine:  engine.DefaultConfig(),
		Logging: Logging{Level: "info", Format: "json"},
		Workers: 1,
	}
}

// Range returns the configured [start, end] window. An empty start is the
// zero time and an empty end is unbounded.
func (d Data) Range() (time.Time, time.Time, error) {
	start, end := time.Time{}, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	var err error
	if d.Start != "" {
		if start, err = ingest.ParseTime(d.Start); err != nil {
			return start, end, fmt.Errorf("%w: data.start: %v", domain.ErrInvalidConfig, err)
		}
	}
	if d.End != "" {
		if end, err = ingest.ParseTime(d.End); err != nil {
			return start, end, fmt.Errorf("%w: data.end: %v", domain.ErrInvalidConfig, err)
		}
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("%w: data.end before data.start", domain.ErrInvalidConfig)
	}
	return start, end, nil
}

// Validate checks the sections the engine does not check itself.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	switch c.Data.Source {
	case "csv", store.KindParquet, store.KindSQLite, store.KindClickHouse:
	default:
		return fmt.Errorf("%w: unknown data.source %q", domain.ErrInvalidConfig, c.Data.Source)
	}
	if c.Data.Source != store.KindClickHouse && c.Data.Path == "" {
		return fmt.Errorf("%w: data.path is required for %s", domain.ErrInvalidConfig, c.Data.Source)
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("%w: no strategies configured", domain.ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", domain.ErrInvalidConfig, c.Workers)
	}
	_, _, err := c.Data.Range()
	return err
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("RBI_DATA_PATH"); v != "" {
		cfg.Data.Path = v
	}
	if v := os.Getenv("RBI_DATA_SOURCE"); v != "" {
		cfg.Data.Source = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		cfg.Data.ClickHouse.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_USER"); v != "" {
		cfg.Data.ClickHouse.Username = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		cfg.Data.ClickHouse.Password = v
	}

	for name, dst := range map[string]*float64{
		"RBI_COMMISSION_RATE": &cfg.Engine.CommissionRate,
		"RBI_CASH":            &cfg.Engine.Cash,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", domain.ErrInvalidConfig, name, v, err)
		}
		*dst = f
	}
	return nil
}
