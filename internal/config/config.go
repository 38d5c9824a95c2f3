package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Mode           string `yaml:"mode"` // "test" or "prod"
	SimulationMode bool   `yaml:"simulation_mode"`
	LogLevel       string `yaml:"log_level"`
	Proxy          string `yaml:"proxy"`

	Exchange  ExchangeConfig  `yaml:"exchange"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Trading   TradingConfig   `yaml:"trading"`
	Risk      RiskConfig      `yaml:"risk"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ExchangeConfig struct {
	BaseURL     string        `yaml:"base_url"`
	WSURL       string        `yaml:"ws_url"`
	APIKey      string        `yaml:"api_key"`
	APISecret   string        `yaml:"api_secret"`
	QuoteAsset  string        `yaml:"quote_asset"`
	Interval    string        `yaml:"interval"`
	CandleLimit int           `yaml:"candle_limit"`
	MaxSymbols  int           `yaml:"max_symbols"`
	RecvWindow  int           `yaml:"recv_window"`
	Timeout     time.Duration `yaml:"timeout"`
	Stream      bool          `yaml:"stream"`
}

type RateLimitConfig struct {
	MaxCalls int           `yaml:"max_calls"`
	Window   time.Duration `yaml:"window"`
}

type TradingConfig struct {
	MaxTradeUSD      float64       `yaml:"max_trade_usd"`
	FallbackSymbols  int           `yaml:"fallback_symbols"`
	Workers          int           `yaml:"workers"`
	AnalysisInterval time.Duration `yaml:"analysis_interval"`
	ClampToBalance   *bool         `yaml:"clamp_to_balance"`
}

// Clamp reports whether allocations are limited by the free quote balance.
func (t TradingConfig) Clamp() bool {
	return t.ClampToBalance == nil || *t.ClampToBalance
}

type RiskConfig struct {
	MaxDrawdown      float64 `yaml:"max_drawdown"`
	StopLossMult     float64 `yaml:"stop_loss_mult"`
	TakeProfitMult   float64 `yaml:"take_profit_mult"`
	VolatilityPeriod int     `yaml:"volatility_period"`
	StateFile        string  `yaml:"state_file"`
}

type SentimentConfig struct {
	EnableNews bool          `yaml:"enable_news"`
	NewsWeight float64       `yaml:"news_weight"`
	APIKey     string        `yaml:"cryptopanic_api_key"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	ChatID      string `yaml:"chat_id"`
	SummaryCron string `yaml:"summary_cron"`
}

type DatabaseConfig struct {
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type SchedulerConfig struct {
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{SimulationMode: true, Sentiment: SentimentConfig{EnableNews: true}}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BOT_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("SIMULATION_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SimulationMode = b
		}
	}
	// test mode trades against the testnet with testnet credentials
	keyVar, secretVar := "BINANCE_API_KEY", "BINANCE_API_SECRET"
	if c.Mode == "test" || c.Mode == "" {
		keyVar, secretVar = "TESTNET_API_KEY", "TESTNET_API_SECRET"
	}
	if v := os.Getenv(keyVar); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv(secretVar); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("CRYPTOPANIC_API_KEY"); v != "" {
		c.Sentiment.APIKey = v
	}
	if v := os.Getenv("MAX_TRADE_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Trading.MaxTradeUSD = f
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Database.PostgresURL = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "test"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Exchange.BaseURL == "" {
		c.Exchange.BaseURL = "https://api.binance.com"
		if c.Mode == "test" {
			c.Exchange.BaseURL = "https://testnet.binance.vision"
		}
	}
	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = "wss://stream.binance.com:9443"
		if c.Mode == "test" {
			c.Exchange.WSURL = "wss://testnet.binance.vision"
		}
	}
	if c.Exchange.QuoteAsset == "" {
		c.Exchange.QuoteAsset = "USDT"
	}
	if c.Exchange.Interval == "" {
		c.Exchange.Interval = "1h"
	}
	if c.Exchange.CandleLimit == 0 {
		c.Exchange.CandleLimit = 100
	}
	if c.Exchange.MaxSymbols == 0 {
		c.Exchange.MaxSymbols = 100
	}
	if c.Exchange.RecvWindow == 0 {
		c.Exchange.RecvWindow = 5000
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = 30 * time.Second
	}
	if c.RateLimit.MaxCalls == 0 {
		c.RateLimit.MaxCalls = 10
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = 5 * time.Second
	}
	if c.Trading.MaxTradeUSD == 0 {
		c.Trading.MaxTradeUSD = 5000
	}
	if c.Trading.FallbackSymbols == 0 {
		c.Trading.FallbackSymbols = 5
	}
	if c.Trading.Workers == 0 {
		c.Trading.Workers = 8
	}
	if c.Trading.AnalysisInterval == 0 {
		c.Trading.AnalysisInterval = time.Hour
	}
	if c.Risk.MaxDrawdown == 0 {
		c.Risk.MaxDrawdown = 0.15
	}
	if c.Risk.StopLossMult == 0 {
		c.Risk.StopLossMult = 2
	}
	if c.Risk.TakeProfitMult == 0 {
		c.Risk.TakeProfitMult = 3.5
	}
	if c.Risk.VolatilityPeriod == 0 {
		c.Risk.VolatilityPeriod = 14
	}
	if c.Risk.StateFile == "" {
		c.Risk.StateFile = "data/positions.json"
	}
	if c.Sentiment.NewsWeight == 0 {
		c.Sentiment.NewsWeight = 0.2
	}
	if c.Sentiment.BaseURL == "" {
		c.Sentiment.BaseURL = "https://cryptopanic.com/api/v1"
	}
	if c.Sentiment.Timeout == 0 {
		c.Sentiment.Timeout = 30 * time.Second
	}
	if c.Telegram.SummaryCron == "" {
		c.Telegram.SummaryCron = "0 0 9 * * *"
	}
	if c.Database.SQLitePath == "" && c.Database.PostgresURL == "" {
		c.Database.SQLitePath = "data/basketpilot.db"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9102"
	}
	if c.Scheduler.MaxConsecutiveFailures == 0 {
		c.Scheduler.MaxConsecutiveFailures = 5
	}
}

// SentimentActive reports whether the sentiment blend stage should run.
func (c *Config) SentimentActive() bool {
	return c.Sentiment.EnableNews && !c.SimulationMode
}

// Validate checks that all fields are within sensible bounds.
func (c *Config) Validate() error {
	if c.Mode != "test" && c.Mode != "prod" {
		return fmt.Errorf("mode must be 'test' or 'prod', got %q", c.Mode)
	}
	if !c.SimulationMode && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("exchange credentials are required outside simulation mode")
	}
	if c.Trading.MaxTradeUSD <= 0 {
		return fmt.Errorf("trading.max_trade_usd must be positive")
	}
	if c.Trading.FallbackSymbols < 0 {
		return fmt.Errorf("trading.fallback_symbols cannot be negative")
	}
	if c.Trading.Workers < 0 {
		return fmt.Errorf("trading.workers cannot be negative")
	}
	if c.Exchange.CandleLimit < 35 {
		// MACD(12,26,9) is the longest lookback
		return fmt.Errorf("exchange.candle_limit (%d) must be at least 35", c.Exchange.CandleLimit)
	}
	if c.RateLimit.MaxCalls < 0 || c.RateLimit.Window < 0 {
		return fmt.Errorf("rate_limit values cannot be negative")
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown >= 1 {
		return fmt.Errorf("risk.max_drawdown (%f) must be in (0,1)", c.Risk.MaxDrawdown)
	}
	if c.Risk.StopLossMult < 0 || c.Risk.TakeProfitMult < 0 {
		return fmt.Errorf("risk multipliers cannot be negative")
	}
	if c.Sentiment.NewsWeight < 0 || c.Sentiment.NewsWeight > 1 {
		return fmt.Errorf("sentiment.news_weight (%f) must be in [0,1]", c.Sentiment.NewsWeight)
	}
	if c.Telegram.ChatID != "" {
		if _, err := strconv.ParseInt(strings.TrimPrefix(c.Telegram.ChatID, "-"), 10, 64); err != nil {
			return fmt.Errorf("telegram.chat_id %q is not numeric", c.Telegram.ChatID)
		}
	}
	if c.Scheduler.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("scheduler.max_consecutive_failures cannot be negative")
	}
	return nil
}
