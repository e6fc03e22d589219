package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
service:
  name: ladder_test
  log_level: debug
exchange:
  mode: paper
  paper_price: "20000"
trading:
  symbol: ETHUSDT
  margin_min: "1.001"
  margin_max: "1.02"
  sleep_min: 5s
  sleep_max: 1m
  buy_cancel_timeout: 2h
ladder:
  remainder: spread
  merge_min_orders: 12
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "ladder_test", cfg.Service.Name)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, ":8080", cfg.Service.HealthAddr)
	assert.Equal(t, ModePaper, cfg.Exchange.Mode)
	assert.Equal(t, "20000", cfg.Exchange.PaperPrice)
	assert.Equal(t, "ETHUSDT", cfg.Trading.Symbol)
	assert.Equal(t, 5*time.Second, cfg.Trading.SleepMin)
	assert.Equal(t, time.Minute, cfg.Trading.SleepMax)
	assert.Equal(t, 2*time.Hour, cfg.Trading.BuyCancelTimeout)
	assert.Equal(t, 2*time.Second, cfg.Trading.PollInterval)
	assert.Equal(t, 2, cfg.Trading.MaxPlaceAttempts)
	assert.Equal(t, "spread", cfg.Ladder.Remainder)
	assert.Equal(t, 12, cfg.Ladder.MergeMinOrders)
	assert.InDelta(t, 0.8, cfg.Ladder.MaxOrdersRatio, 1e-9)
	assert.Equal(t, "0.8", cfg.OrdersRatio().String())

	lo, hi := cfg.Margins()
	assert.Equal(t, "1.001", lo.String())
	assert.Equal(t, "1.02", hi.String())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", cfg.Trading.Symbol)
	assert.Equal(t, 24*time.Hour, cfg.Trading.BuyCancelTimeout)
	assert.Equal(t, "highest", cfg.Ladder.Remainder)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TRADING_SYMBOL", "SOLUSDT")
	t.Setenv("TRADING_SLEEP_MAX", "3m")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", cfg.Trading.Symbol)
	assert.Equal(t, 3*time.Minute, cfg.Trading.SleepMax)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "live without keys", env: map[string]string{"EXCHANGE_MODE": "live"}},
		{name: "unknown mode", env: map[string]string{"EXCHANGE_MODE": "demo"}},
		{name: "margin below one", env: map[string]string{"TRADING_MARGIN_MIN": "0.99"}},
		{name: "margins inverted", env: map[string]string{"TRADING_MARGIN_MIN": "1.05", "TRADING_MARGIN_MAX": "1.01"}},
		{name: "margin not a number", env: map[string]string{"TRADING_MARGIN_MAX": "abc"}},
		{name: "sleep inverted", env: map[string]string{"TRADING_SLEEP_MIN": "2m", "TRADING_SLEEP_MAX": "1m"}},
		{name: "ratio out of range", env: map[string]string{"LADDER_MAX_ORDERS_RATIO": "1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, sample))
			assert.Error(t, err)
		})
	}
}
