// Package config loads YAML configuration with .env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/ingestion"
)

// Config is the full application configuration.
type Config struct {
	Loop      LoopConfig      `yaml:"loop"`
	Policy    PolicyConfig    `yaml:"policy"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LoopConfig sizes the leveraged position.
type LoopConfig struct {
	LTV               float64 `yaml:"ltv"`
	StopCondition     float64 `yaml:"stop_condition"`
	InitialCollateral float64 `yaml:"initial_collateral"`
}

// PolicyConfig controls rebalance decisions and costs.
type PolicyConfig struct {
	NegativeSpreadThreshold float64 `yaml:"negative_spread_threshold"`
	ConsecutivePeriods      int     `yaml:"consecutive_periods"`
	TxCostUSD               float64 `yaml:"tx_cost_usd"`
	SwapFeePct              float64 `yaml:"swap_fee_pct"`
}

// StorageConfig holds database connection strings.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

// IngestionConfig controls rate data sources.
type IngestionConfig struct {
	LlamaBaseURL         string            `yaml:"llama_base_url"`
	Pools                map[string]string `yaml:"pools"` // asset name -> DefiLlama pool ID
	StreamEndpoint       string            `yaml:"stream_endpoint"`
	FlushIntervalSeconds int               `yaml:"flush_interval_seconds"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the metrics server
}

// Load reads the YAML file at path, applies .env and environment variable
// overrides, and fills in defaults. Pass an empty path to use defaults only.
func Load(path string) (*Config, error) {
	// Load .env if present (silently ignore if missing)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// LoopConfig converts to the domain type.
func (c *Config) LoopConfig() domain.LoopConfig {
	return domain.LoopConfig{
		LTV:               c.Loop.LTV,
		StopCondition:     c.Loop.StopCondition,
		InitialCollateral: c.Loop.InitialCollateral,
	}
}

// PolicyConfig converts to the domain type.
func (c *Config) PolicyConfig() domain.PolicyConfig {
	return domain.PolicyConfig{
		NegativeSpreadThreshold: c.Policy.NegativeSpreadThreshold,
		ConsecutivePeriods:      c.Policy.ConsecutivePeriods,
		TxCostUSD:               c.Policy.TxCostUSD,
		SwapFeePct:              c.Policy.SwapFeePct,
	}
}

// FlushInterval returns the live-mode flush interval as a time.Duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Ingestion.FlushIntervalSeconds) * time.Second
}

// applyEnvOverrides overwrites fields from well-known environment variables
// when set, so operators can inject connection strings without touching YAML.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("STREAM_ENDPOINT"); v != "" {
		cfg.Ingestion.StreamEndpoint = v
	}
	if v := os.Getenv("LLAMA_BASE_URL"); v != "" {
		cfg.Ingestion.LlamaBaseURL = v
	}
	if v := os.Getenv("TX_COST_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Policy.TxCostUSD = f
		}
	}
}

// setDefaults fills unset values with sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Loop.LTV == 0 {
		cfg.Loop.LTV = 0.9
	}
	if cfg.Loop.StopCondition == 0 {
		cfg.Loop.StopCondition = 0.8
	}
	if cfg.Loop.InitialCollateral == 0 {
		cfg.Loop.InitialCollateral = 100
	}

	defaults := domain.DefaultPolicy
	if cfg.Policy.NegativeSpreadThreshold == 0 {
		cfg.Policy.NegativeSpreadThreshold = defaults.NegativeSpreadThreshold
	}
	if cfg.Policy.ConsecutivePeriods == 0 {
		cfg.Policy.ConsecutivePeriods = defaults.ConsecutivePeriods
	}
	if cfg.Policy.TxCostUSD == 0 {
		cfg.Policy.TxCostUSD = defaults.TxCostUSD
	}

	if cfg.Ingestion.LlamaBaseURL == "" {
		cfg.Ingestion.LlamaBaseURL = ingestion.DefaultLlamaBaseURL
	}
	if len(cfg.Ingestion.Pools) == 0 {
		cfg.Ingestion.Pools = ingestion.DefaultLlamaPools
	}
	if cfg.Ingestion.FlushIntervalSeconds <= 0 {
		cfg.Ingestion.FlushIntervalSeconds = 10
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}
