package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
exchange:
  symbols: ["BTCUSDT"]
`

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "binance", cfg.Exchange.Name)
	assert.Equal(t, "USDT", cfg.Exchange.QuoteAsset)
	assert.Equal(t, 1.0, cfg.Risk.RiskPerTradePct)
	assert.Equal(t, 5, cfg.Risk.MaxConcurrentPositions)
	assert.Equal(t, 20.0, cfg.Risk.MaxDrawdownPct)
	assert.Equal(t, 10, cfg.Signal.MaxLeverage)
	assert.Equal(t, 0.7, cfg.Signal.SafeStopFraction)
	assert.Equal(t, 500, cfg.Connection.MinDelayMs)
	assert.Equal(t, 10000, cfg.Connection.MaxDelayMs)
	assert.Equal(t, 2.0, cfg.Connection.Factor)
	assert.True(t, cfg.State.ReconcileOnStartup)
	assert.True(t, cfg.State.BlockOnMismatch)
	assert.Equal(t, "30s", cfg.State.SaveInterval)
	assert.True(t, cfg.Server.Enabled)
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
exchange:
  symbols: ["ETHUSDT"]
risk:
  risk_per_trade_pct: 0.5
  max_portfolio_heat_pct: 4
signal:
  leverage_overrides: true
  force_max_leverage: true
  max_leverage: 20
state:
  reconcile_on_startup: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Risk.RiskPerTradePct)
	assert.Equal(t, 4.0, cfg.Risk.MaxPortfolioHeatPct)
	assert.Equal(t, 20, cfg.Signal.MaxLeverage)
	assert.True(t, cfg.Signal.ForceMaxLeverage)
	assert.False(t, cfg.State.ReconcileOnStartup, "explicit false must not be overwritten by the default")
}

func TestLoad_IncludeMerging(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
exchange:
  symbols: ["BTCUSDT"]
risk:
  risk_per_trade_pct: 2
`)
	main := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
risk:
  risk_per_trade_pct: 1.5
`)

	cfg, err := Load(main)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Exchange.Symbols, "inherited from include")
	assert.Equal(t, 1.5, cfg.Risk.RiskPerTradePct, "the including file overrides")
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no symbols", "exchange:\n  name: binance\n"},
		{"unsupported exchange", "exchange:\n  name: kraken\n  symbols: [\"BTCUSDT\"]\n"},
		{"heat below per-trade risk", minimalConfig + "risk:\n  risk_per_trade_pct: 5\n  max_portfolio_heat_pct: 2\n"},
		{"force without overrides", minimalConfig + "signal:\n  force_max_leverage: true\n"},
		{"bad save interval", minimalConfig + "state:\n  save_interval: often\n"},
		{"telegram without token", minimalConfig + "notify:\n  telegram:\n    enabled: true\n"},
		{"daily above total drawdown", minimalConfig + "risk:\n  max_drawdown_pct: 10\n  max_daily_drawdown_pct: 15\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", tc.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	_, err = Load("")
	assert.Error(t, err)
}
