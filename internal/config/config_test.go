package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Mode)
	assert.True(t, cfg.SimulationMode)
	assert.Equal(t, 10, cfg.RateLimit.MaxCalls)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 5000.0, cfg.Trading.MaxTradeUSD)
	assert.Equal(t, 5, cfg.Trading.FallbackSymbols)
	assert.Equal(t, 0.15, cfg.Risk.MaxDrawdown)
	assert.Equal(t, 2.0, cfg.Risk.StopLossMult)
	assert.Equal(t, 3.5, cfg.Risk.TakeProfitMult)
	assert.Equal(t, 0.2, cfg.Sentiment.NewsWeight)
	assert.True(t, cfg.Trading.Clamp())
	assert.Equal(t, "https://testnet.binance.vision", cfg.Exchange.BaseURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverrides(t *testing.T) {
	path := writeConfig(t, `
mode: prod
simulation_mode: true
exchange:
  quote_asset: BUSD
  candle_limit: 200
rate_limit:
  max_calls: 3
  window: 2s
trading:
  max_trade_usd: 1000
  clamp_to_balance: false
risk:
  max_drawdown: 0.1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Mode)
	assert.Equal(t, "https://api.binance.com", cfg.Exchange.BaseURL)
	assert.Equal(t, "BUSD", cfg.Exchange.QuoteAsset)
	assert.Equal(t, 200, cfg.Exchange.CandleLimit)
	assert.Equal(t, 3, cfg.RateLimit.MaxCalls)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 1000.0, cfg.Trading.MaxTradeUSD)
	assert.False(t, cfg.Trading.Clamp())
	assert.Equal(t, 0.1, cfg.Risk.MaxDrawdown)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SIMULATION_MODE", "false")
	t.Setenv("TESTNET_API_KEY", "k")
	t.Setenv("TESTNET_API_SECRET", "s")
	t.Setenv("MAX_TRADE_USD", "250")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.False(t, cfg.SimulationMode)
	assert.Equal(t, "k", cfg.Exchange.APIKey)
	assert.Equal(t, "s", cfg.Exchange.APISecret)
	assert.Equal(t, 250.0, cfg.Trading.MaxTradeUSD)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.SentimentActive())
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "mode: [unterminated"))
	require.Error(t, err)
}

func TestSentimentActive_DisabledInSimulation(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.SimulationMode)
	assert.False(t, cfg.SentimentActive())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "staging" }},
		{"live without credentials", func(c *Config) { c.SimulationMode = false }},
		{"zero budget", func(c *Config) { c.Trading.MaxTradeUSD = 0 }},
		{"short candle window", func(c *Config) { c.Exchange.CandleLimit = 20 }},
		{"drawdown out of range", func(c *Config) { c.Risk.MaxDrawdown = 1.5 }},
		{"news weight out of range", func(c *Config) { c.Sentiment.NewsWeight = 2 }},
		{"non numeric chat id", func(c *Config) { c.Telegram.ChatID = "abc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
