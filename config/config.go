package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Config is the complete trading configuration. Every field has a default
// (see Default); a config file only needs to carry the fields it overrides.
type Config struct {
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Guard     GuardConfig     `json:"guard" yaml:"guard"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Logs      LogConfig       `json:"logs" yaml:"logs"`
	Stations  StationsConfig  `json:"stations" yaml:"stations"`
	Broker    BrokerConfig    `json:"broker" yaml:"broker"`
	Observe   ObserveConfig   `json:"observe" yaml:"observe"`
	Server    ServerConfig    `json:"server" yaml:"server"`
}

// RiskConfig holds bankroll-relative limits and circuit breakers.
type RiskConfig struct {
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	MaxOpenPositions   int     `json:"max_open_positions" yaml:"max_open_positions"`
	MaxPositionPct     float64 `json:"max_position_pct" yaml:"max_position_pct"`
	MaxStationExposure float64 `json:"max_station_exposure" yaml:"max_station_exposure"`
	DrawdownPct        float64 `json:"drawdown_pct" yaml:"drawdown_pct"`
	MaxPerStation      int     `json:"max_per_station" yaml:"max_per_station"`
	InitialBankroll    float64 `json:"initial_bankroll" yaml:"initial_bankroll"`
}

// GuardConfig holds the hard admission thresholds.
type GuardConfig struct {
	HardMaxContracts          int     `json:"hard_max_contracts" yaml:"hard_max_contracts"`
	MaxTradesPerDayPerStation int     `json:"max_trades_per_day_per_station" yaml:"max_trades_per_day_per_station"`
	MinSigmaGap               float64 `json:"min_sigma_gap" yaml:"min_sigma_gap"`
	MaxModelSpread            float64 `json:"max_model_spread" yaml:"max_model_spread"`
	MaxBidAskSpread           float64 `json:"max_bid_ask_spread" yaml:"max_bid_ask_spread"`
	ClimOutlierRange          float64 `json:"clim_outlier_range" yaml:"clim_outlier_range"`
	MaxStationExposurePct     float64 `json:"max_station_exposure_pct" yaml:"max_station_exposure_pct"`
}

// ExecutionConfig holds auto-execution and sizing parameters.
type ExecutionConfig struct {
	AutoMaxContracts    int     `json:"auto_max_contracts" yaml:"auto_max_contracts"`
	KellyFraction       float64 `json:"kelly_fraction" yaml:"kelly_fraction"`
	MaxFraction         float64 `json:"max_fraction" yaml:"max_fraction"`
	TransactionCost     float64 `json:"transaction_cost" yaml:"transaction_cost"`
	MaxTradesPerSession int     `json:"max_trades_per_session" yaml:"max_trades_per_session"`
	PendingTTL          string  `json:"pending_ttl" yaml:"pending_ttl"` // e.g. "30m"
}

// ParseTTL converts PendingTTL to a time.Duration.
func (e ExecutionConfig) ParseTTL() (time.Duration, error) {
	if e.PendingTTL == "" {
		return 30 * time.Minute, nil
	}
	return time.ParseDuration(e.PendingTTL)
}

// LedgerConfig locates the durable ledger and pending documents.
type LedgerConfig struct {
	Path        string `json:"path" yaml:"path"`
	PendingPath string `json:"pending_path" yaml:"pending_path"`
}

// JournalConfig contains history journaling parameters.
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "jsonl", "sqlite" or "none"
	Dir    string `json:"dir" yaml:"dir"`
	DBPath string `json:"db_path" yaml:"db_path"`
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// StationsConfig points at the station reference file. Empty File means the
// built-in station table.
type StationsConfig struct {
	File string `json:"file" yaml:"file"`
}

// BrokerConfig configures the exchange REST client used in live mode.
type BrokerConfig struct {
	BaseURL         string  `json:"base_url" yaml:"base_url"`
	OrdersPerSecond float64 `json:"orders_per_second" yaml:"orders_per_second"`
}

// ObserveConfig configures the observation client used by settlement.
type ObserveConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	UserAgent  string `json:"user_agent" yaml:"user_agent"`
	Timeout    string `json:"timeout" yaml:"timeout"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
// on top of Default, so absent fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and returns Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFromFile(path)
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := fraction("risk.max_daily_loss_pct", c.Risk.MaxDailyLossPct); err != nil {
		return err
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be positive")
	}
	if err := fraction("risk.max_position_pct", c.Risk.MaxPositionPct); err != nil {
		return err
	}
	if err := fraction("risk.max_station_exposure", c.Risk.MaxStationExposure); err != nil {
		return err
	}
	if err := fraction("risk.drawdown_pct", c.Risk.DrawdownPct); err != nil {
		return err
	}
	if c.Risk.MaxPerStation <= 0 {
		return fmt.Errorf("risk.max_per_station must be positive")
	}
	if c.Risk.InitialBankroll <= 0 {
		return fmt.Errorf("risk.initial_bankroll must be positive")
	}

	if c.Guard.HardMaxContracts <= 0 {
		return fmt.Errorf("guard.hard_max_contracts must be positive")
	}
	if c.Guard.MaxTradesPerDayPerStation <= 0 {
		return fmt.Errorf("guard.max_trades_per_day_per_station must be positive")
	}
	if c.Guard.MinSigmaGap < 0 {
		return fmt.Errorf("guard.min_sigma_gap cannot be negative")
	}
	if c.Guard.MaxModelSpread <= 0 {
		return fmt.Errorf("guard.max_model_spread must be positive")
	}
	if c.Guard.MaxBidAskSpread <= 0 || c.Guard.MaxBidAskSpread >= 1 {
		return fmt.Errorf("guard.max_bid_ask_spread must be between 0 and 1")
	}
	if c.Guard.ClimOutlierRange <= 0 {
		return fmt.Errorf("guard.clim_outlier_range must be positive")
	}
	if err := fraction("guard.max_station_exposure_pct", c.Guard.MaxStationExposurePct); err != nil {
		return err
	}

	if c.Execution.AutoMaxContracts <= 0 {
		return fmt.Errorf("execution.auto_max_contracts must be positive")
	}
	if err := fraction("execution.kelly_fraction", c.Execution.KellyFraction); err != nil {
		return err
	}
	if err := fraction("execution.max_fraction", c.Execution.MaxFraction); err != nil {
		return err
	}
	if c.Execution.TransactionCost < 0 || c.Execution.TransactionCost >= 1 {
		return fmt.Errorf("execution.transaction_cost must be in [0, 1)")
	}
	if c.Execution.MaxTradesPerSession <= 0 {
		return fmt.Errorf("execution.max_trades_per_session must be positive")
	}
	if ttl, err := c.Execution.ParseTTL(); err != nil || ttl <= 0 {
		return fmt.Errorf("execution.pending_ttl must be a positive duration")
	}

	if c.Ledger.Path == "" || c.Ledger.PendingPath == "" {
		return fmt.Errorf("ledger.path and ledger.pending_path are required")
	}

	switch c.Journal.Type {
	case "none":
	case "jsonl":
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal dir required for jsonl type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for sqlite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'jsonl', 'sqlite' or 'none'")
	}

	if c.Observe.Timeout != "" {
		if _, err := time.ParseDuration(c.Observe.Timeout); err != nil {
			return fmt.Errorf("observe.timeout: %w", err)
		}
	}
	return nil
}

func fraction(key string, v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("%s must be between 0 and 1", key)
	}
	return nil
}

// Default returns the conservative defaults every absent field falls back to.
func Default() *Config {
	return &Config{
		Risk: RiskConfig{
			MaxDailyLossPct:    0.05,
			MaxOpenPositions:   5,
			MaxPositionPct:     0.05,
			MaxStationExposure: 0.10,
			DrawdownPct:        0.20,
			MaxPerStation:      3,
			InitialBankroll:    1000,
		},
		Guard: GuardConfig{
			HardMaxContracts:          20,
			MaxTradesPerDayPerStation: 1,
			MinSigmaGap:               1.5,
			MaxModelSpread:            3.0,
			MaxBidAskSpread:           0.10,
			ClimOutlierRange:          15,
			MaxStationExposurePct:     0.05,
		},
		Execution: ExecutionConfig{
			AutoMaxContracts:    5,
			KellyFraction:       0.25,
			MaxFraction:         0.05,
			TransactionCost:     0.04,
			MaxTradesPerSession: 1,
			PendingTTL:          "30m",
		},
		Ledger: LedgerConfig{
			Path:        "./data/ledger.json",
			PendingPath: "./data/pending.json",
		},
		Journal: JournalConfig{
			Type: "jsonl",
			Dir:  "./data/history",
		},
		Logs: LogConfig{
			Level:      "info",
			File:       "./data/logs/wxtrader.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Broker: BrokerConfig{
			BaseURL:         "https://api.elections.kalshi.com/trade-api/v2",
			OrdersPerSecond: 2,
		},
		Observe: ObserveConfig{
			BaseURL:    "https://api.weather.gov",
			UserAgent:  "wxtrader/1.0 (prediction-market trading)",
			Timeout:    "15s",
			MaxRetries: 2,
		},
		Server: ServerConfig{
			Addr: ":8088",
		},
	}
}
