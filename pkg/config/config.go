package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"Aurelius/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string         `yaml:"environment" default:"development"`
	Log         LogConfig      `yaml:"log"`
	Provider    ProviderConfig `yaml:"provider"`
	Storage     StorageConfig  `yaml:"storage"`
	Cache       CacheConfig    `yaml:"cache"`
	Databases   []Database     `yaml:"databases" validate:"required,min=1,dive"`
	Range       struct {
		Start string `yaml:"start" validate:"required,datetime=2006-01-02"`
		End   string `yaml:"end" validate:"required,datetime=2006-01-02"`
	} `yaml:"range"`
	Calendar struct {
		File   string `yaml:"file"`
		Column string `yaml:"column" default:"Date"`
	} `yaml:"calendar"`
	Backtest BacktestConfig `yaml:"backtest"`
	Export   ExportConfig   `yaml:"export"`
	Metrics  struct {
		Listen      string `yaml:"listen"`
		Pushgateway string `yaml:"pushgateway"`
		Job         string `yaml:"job" default:"aurelius"`
	} `yaml:"metrics"`
	Report struct {
		Dir string `yaml:"dir" default:"reports"`
	} `yaml:"report"`
}

type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"`
	EchoStdout bool   `yaml:"echo_stdout"`
}

type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url" default:"https://api.polygon.io" validate:"required,url"`
	APIKey         string        `yaml:"api_key"`
	MinInterval    time.Duration `yaml:"min_interval" default:"12s" validate:"gte=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"30s" validate:"gt=0"`
	Adjusted       *bool         `yaml:"adjusted" default:"true"`
	Limit          int           `yaml:"limit" default:"50000" validate:"gt=0"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" default:"sqlite" validate:"oneof=sqlite clickhouse"`
	SQLite  struct {
		Dir         string        `yaml:"dir" default:"data"`
		BusyTimeout time.Duration `yaml:"busy_timeout" default:"5s"`
	} `yaml:"sqlite"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" default:"none" validate:"oneof=none memory redis layered"`
	TTL           time.Duration `yaml:"ttl" default:"24h"`
	MemoryMaxSize int           `yaml:"memory_max_size" default:"1000"`
	Redis         struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"aurelius"`
	} `yaml:"redis"`
}

// Database is one logical store with the tables populated inside it.
type Database struct {
	Name    string   `yaml:"name" validate:"required"`
	Tickers []string `yaml:"tickers" validate:"required,min=1"`
	Tables  []Table  `yaml:"tables" validate:"required,min=1,dive"`
}

type Table struct {
	Name     string `yaml:"name" validate:"required"`
	Kind     string `yaml:"kind" validate:"required,oneof=bars market_cap"`
	Interval string `yaml:"interval"`
}

// TableRef points at a table inside a configured database.
type TableRef struct {
	Database string `yaml:"database" validate:"required"`
	Table    string `yaml:"table" validate:"required"`
}

// JoinInput names a derived bars+market-cap table fed to the backtester.
type JoinInput struct {
	Name       string   `yaml:"name" validate:"required"`
	Bars       TableRef `yaml:"bars"`
	MarketCaps TableRef `yaml:"market_caps"`
}

type BacktestConfig struct {
	InitialValue      float64     `yaml:"initial_value" default:"10000" validate:"gt=0"`
	Strategies        []string    `yaml:"strategies" validate:"dive,oneof=market_cap_weighted equal_weighted"`
	Workers           int         `yaml:"workers" default:"2" validate:"gte=1"`
	Valuation         string      `yaml:"valuation" default:"zero" validate:"oneof=zero carry_forward"`
	IncludeBaseTables bool        `yaml:"include_base_tables"`
	Inputs            []JoinInput `yaml:"inputs" validate:"dive"`
}

type ExportConfig struct {
	Dir    string `yaml:"dir" default:"results"`
	Format string `yaml:"format" default:"csv" validate:"oneof=csv json parquet"`
	Kafka  struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"aurelius.backtests"`
		Compression  string   `yaml:"compression" default:"gzip"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
	} `yaml:"kafka"`
}

var validate = validator.New()

// ErrMissingAPIKey is returned by RequireProvider when no provider key is set.
var ErrMissingAPIKey = errors.New("provider.api_key is required to fetch market data")

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("TICKERS"); v != "" {
		tickers := splitList(v)
		for i := range c.Databases {
			c.Databases[i].Tickers = tickers
		}
	}
	if v := os.Getenv("START_DATE"); v != "" {
		c.Range.Start = v
	}
	if v := os.Getenv("END_DATE"); v != "" {
		c.Range.End = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.Backtest.Workers = util.ParseIntDefault(os.Getenv("BACKTEST_WORKERS"), c.Backtest.Workers)

	if err := c.finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse builds a Config from raw YAML bytes.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) finalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// RequireProvider checks the settings only needed by commands that call the
// market data provider. Audit and backtest run without them.
func (c *Config) RequireProvider() error {
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	start, end, err := c.DateRange()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("range.end %s is before range.start %s", c.Range.End, c.Range.Start)
	}

	seen := make(map[string]bool, len(c.Databases))
	for _, db := range c.Databases {
		if seen[db.Name] {
			return fmt.Errorf("database %q declared twice", db.Name)
		}
		seen[db.Name] = true
	}

	for _, in := range c.Backtest.Inputs {
		if err := c.checkRef(in.Bars, "bars"); err != nil {
			return fmt.Errorf("backtest input %q: %w", in.Name, err)
		}
		if err := c.checkRef(in.MarketCaps, "market_cap"); err != nil {
			return fmt.Errorf("backtest input %q: %w", in.Name, err)
		}
	}

	if c.Export.Kafka.Enabled && len(c.Export.Kafka.Brokers) == 0 {
		return fmt.Errorf("export.kafka.brokers is required when kafka export is enabled")
	}
	return nil
}

// DateRange returns the configured ingestion window as UTC dates.
func (c *Config) DateRange() (time.Time, time.Time, error) {
	start, err := util.ParseDate(c.Range.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("range.start: %w", err)
	}
	end, err := util.ParseDate(c.Range.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("range.end: %w", err)
	}
	return start, end, nil
}

// FindTable returns the table declaration for ref, if configured.
func (c *Config) FindTable(ref TableRef) (Table, bool) {
	for _, db := range c.Databases {
		if db.Name != ref.Database {
			continue
		}
		for _, t := range db.Tables {
			if t.Name == ref.Table {
				return t, true
			}
		}
	}
	return Table{}, false
}

func (c *Config) checkRef(ref TableRef, kind string) error {
	t, ok := c.FindTable(ref)
	if !ok {
		return fmt.Errorf("unknown table %s.%s", ref.Database, ref.Table)
	}
	if t.Kind != kind {
		return fmt.Errorf("table %s.%s has kind %s, want %s", ref.Database, ref.Table, t.Kind, kind)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
