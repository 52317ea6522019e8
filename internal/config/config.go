// Package config loads and validates the scanner configuration.
//
// Configuration errors are fatal at startup: the process must not continue
// in a half-configured state.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps all configuration validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root scanner configuration.
type Config struct {
	Providers  []ProviderConfig `yaml:"providers"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Validation ValidationConfig `yaml:"validation"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	History    HistoryConfig    `yaml:"history"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ProviderConfig describes one RPC provider endpoint, in priority order.
type ProviderConfig struct {
	Name              string `yaml:"name"`
	URL               string `yaml:"url"`
	WSURL             string `yaml:"ws_url"`
	APIKey            string `yaml:"api_key"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// GatewayConfig tunes retries, backoff, and concurrency of the chain gateway.
type GatewayConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	MaxInflight int           `yaml:"max_inflight"`
}

// MonitorConfig tunes the stream monitor.
type MonitorConfig struct {
	Exchanges       []string      `yaml:"exchanges"`
	EnableWebsocket bool          `yaml:"enable_websocket"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	DedupWindow     int           `yaml:"dedup_window"` // recent-signature window size
	MaxPairAge      time.Duration `yaml:"max_pair_age"`
}

// AggregatorConfig tunes the metrics aggregator.
type AggregatorConfig struct {
	Concurrency      int              `yaml:"concurrency"`
	SnapshotAttempts int              `yaml:"snapshot_attempts"`
	SOLPriceUSD      float64          `yaml:"sol_price_usd"`   // quote conversion rate
	TxSampleLimit    int              `yaml:"tx_sample_limit"` // recent txs inspected per snapshot
	MarketData       MarketDataConfig `yaml:"market_data"`
}

// MarketDataConfig points the aggregator at an off-chain enrichment API for
// holder counts, social mentions, 24h volume, and LP lock terms.
type MarketDataConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig tunes the discovery-to-alert worker pool.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// ValidationConfig holds the validator engine thresholds.
type ValidationConfig struct {
	MaxTopTenShare        float64       `yaml:"max_top_ten_share"`       // fraction, e.g. 0.30
	MaxDevShare           float64       `yaml:"max_dev_share"`           // fraction, e.g. 0.05
	MinLiquidityUSD       float64       `yaml:"min_liquidity_usd"`       // e.g. 500
	MinLPLock             time.Duration `yaml:"min_lp_lock"`             // e.g. 720h
	MaxLiquidityWithdrawn float64       `yaml:"max_liquidity_withdrawn"` // fraction, e.g. 0.30
}

// AlertsConfig configures the alert dispatcher and its channels.
type AlertsConfig struct {
	ScoreThreshold    float64        `yaml:"score_threshold"`
	RequireValidation bool           `yaml:"require_validation"`
	DedupWindow       time.Duration  `yaml:"dedup_window"`
	MaxAttempts       int            `yaml:"max_attempts"`
	RetryDelay        time.Duration  `yaml:"retry_delay"`
	Telegram          TelegramConfig `yaml:"telegram"`
	Discord           DiscordConfig  `yaml:"discord"`
	Webhook           WebhookConfig  `yaml:"webhook"`
}

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// DiscordConfig configures the Discord webhook channel.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig configures the generic signed-webhook channel.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// HistoryConfig configures the optional write-through history store.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with workable defaults for every tunable.
// Providers and alert channels must still be supplied.
func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			MaxRetries:  3,
			RetryDelay:  1 * time.Second,
			MaxDelay:    10 * time.Second,
			CallTimeout: 30 * time.Second,
			MaxInflight: 10,
		},
		Monitor: MonitorConfig{
			Exchanges:       []string{"raydium", "pumpfun"},
			EnableWebsocket: true,
			PollInterval:    10 * time.Second,
			DedupWindow:     4096,
			MaxPairAge:      60 * time.Minute,
		},
		Aggregator: AggregatorConfig{
			Concurrency:      4,
			SnapshotAttempts: 3,
			SOLPriceUSD:      150,
			TxSampleLimit:    50,
			MarketData: MarketDataConfig{
				Timeout: 10 * time.Second,
			},
		},
		Pipeline: PipelineConfig{
			Workers: 4,
		},
		Validation: ValidationConfig{
			MaxTopTenShare:        0.30,
			MaxDevShare:           0.05,
			MinLiquidityUSD:       500,
			MinLPLock:             30 * 24 * time.Hour,
			MaxLiquidityWithdrawn: 0.30,
		},
		Alerts: AlertsConfig{
			ScoreThreshold:    70,
			RequireValidation: false,
			DedupWindow:       1 * time.Hour,
			MaxAttempts:       3,
			RetryDelay:        2 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets from the environment so they can stay out of
// the YAML file. Typically populated from a .env file at startup.
func (c *Config) applyEnv() {
	if v := os.Getenv("MOONSCAN_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Alerts.Telegram.BotToken = v
	}
	if v := os.Getenv("MOONSCAN_WEBHOOK_SECRET"); v != "" {
		c.Alerts.Webhook.Secret = v
	}
	if v := os.Getenv("MOONSCAN_POSTGRES_DSN"); v != "" {
		c.History.PostgresDSN = v
	}
	if v := os.Getenv("MOONSCAN_MARKET_API_KEY"); v != "" {
		c.Aggregator.MarketData.APIKey = v
	}
	if v := os.Getenv("MOONSCAN_RPC_API_KEY"); v != "" {
		for i := range c.Providers {
			if c.Providers[i].APIKey == "" {
				c.Providers[i].APIKey = v
			}
		}
	}
}

// Validate enforces the configuration-fatal conditions. The process must not
// start when any of these fail.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("%w: at least one RPC provider is required", ErrInvalidConfig)
	}
	for i, p := range c.Providers {
		if p.URL == "" {
			return fmt.Errorf("%w: provider %d (%q) has no URL", ErrInvalidConfig, i, p.Name)
		}
		if p.RequestsPerMinute < 0 {
			return fmt.Errorf("%w: provider %q has negative rate limit", ErrInvalidConfig, p.Name)
		}
	}

	if c.Gateway.MaxRetries < 0 {
		return fmt.Errorf("%w: gateway max_retries must be >= 0", ErrInvalidConfig)
	}
	if c.Gateway.CallTimeout <= 0 {
		return fmt.Errorf("%w: gateway call_timeout must be positive", ErrInvalidConfig)
	}
	if c.Gateway.MaxInflight <= 0 {
		return fmt.Errorf("%w: gateway max_inflight must be positive", ErrInvalidConfig)
	}

	if len(c.Monitor.Exchanges) == 0 {
		return fmt.Errorf("%w: at least one exchange must be monitored", ErrInvalidConfig)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("%w: monitor poll_interval must be positive", ErrInvalidConfig)
	}
	if c.Monitor.DedupWindow <= 0 {
		return fmt.Errorf("%w: monitor dedup_window must be positive", ErrInvalidConfig)
	}

	if c.Aggregator.Concurrency <= 0 {
		return fmt.Errorf("%w: aggregator concurrency must be positive", ErrInvalidConfig)
	}
	if c.Aggregator.SnapshotAttempts <= 0 {
		return fmt.Errorf("%w: aggregator snapshot_attempts must be positive", ErrInvalidConfig)
	}
	if c.Aggregator.SOLPriceUSD <= 0 {
		return fmt.Errorf("%w: aggregator sol_price_usd must be positive", ErrInvalidConfig)
	}
	if c.Aggregator.MarketData.Enabled && c.Aggregator.MarketData.BaseURL == "" {
		return fmt.Errorf("%w: market_data enabled without base_url", ErrInvalidConfig)
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("%w: pipeline workers must be positive", ErrInvalidConfig)
	}

	if !c.Alerts.Telegram.Enabled && !c.Alerts.Discord.Enabled && !c.Alerts.Webhook.Enabled {
		return fmt.Errorf("%w: no alert channels enabled", ErrInvalidConfig)
	}
	if c.Alerts.Webhook.Enabled {
		if c.Alerts.Webhook.URL == "" {
			return fmt.Errorf("%w: webhook channel enabled without URL", ErrInvalidConfig)
		}
		if c.Alerts.Webhook.Secret == "" {
			return fmt.Errorf("%w: webhook channel enabled without signing secret", ErrInvalidConfig)
		}
	}
	if c.Alerts.Telegram.Enabled && (c.Alerts.Telegram.BotToken == "" || c.Alerts.Telegram.ChatID == "") {
		return fmt.Errorf("%w: telegram channel enabled without bot_token/chat_id", ErrInvalidConfig)
	}
	if c.Alerts.Discord.Enabled && c.Alerts.Discord.WebhookURL == "" {
		return fmt.Errorf("%w: discord channel enabled without webhook_url", ErrInvalidConfig)
	}
	if c.Alerts.DedupWindow <= 0 {
		return fmt.Errorf("%w: alert dedup_window must be positive", ErrInvalidConfig)
	}
	if c.Alerts.MaxAttempts <= 0 {
		return fmt.Errorf("%w: alert max_attempts must be positive", ErrInvalidConfig)
	}

	if c.History.Enabled && c.History.PostgresDSN == "" {
		return fmt.Errorf("%w: history enabled without postgres_dsn", ErrInvalidConfig)
	}

	return nil
}
