package config

import (
	"fmt"
	"strings"

	"kestrel/internal/scheduler"
)

func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Signal.validate(); err != nil {
		return err
	}
	if err := c.Connection.validate(); err != nil {
		return err
	}
	if err := c.State.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	if strings.ToLower(strings.TrimSpace(e.Name)) != "binance" {
		return fmt.Errorf("exchange.name only supports 'binance', got %s", e.Name)
	}
	if len(e.Symbols) == 0 {
		return fmt.Errorf("exchange.symbols requires at least one symbol")
	}
	if _, ok := scheduler.ParseIntervalDuration(e.StreamInterval); !ok {
		return fmt.Errorf("exchange.stream_interval is invalid: %s", e.StreamInterval)
	}
	if e.Proxy.Enabled && e.Proxy.RESTURL == "" && e.Proxy.WSURL == "" {
		return fmt.Errorf("exchange proxy enabled but no rest_url or ws_url")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.RiskPerTradePct <= 0 || r.RiskPerTradePct > 100 {
		return fmt.Errorf("risk.risk_per_trade_pct must be in (0, 100]")
	}
	if r.MaxPortfolioHeatPct < r.RiskPerTradePct {
		return fmt.Errorf("risk.max_portfolio_heat_pct must be >= risk_per_trade_pct")
	}
	if r.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("risk.max_concurrent_positions must be > 0")
	}
	if r.MaxDrawdownPct <= 0 || r.MaxDrawdownPct > 100 {
		return fmt.Errorf("risk.max_drawdown_pct must be in (0, 100]")
	}
	if r.MaxDailyDrawdownPct <= 0 || r.MaxDailyDrawdownPct > r.MaxDrawdownPct {
		return fmt.Errorf("risk.max_daily_drawdown_pct must be in (0, max_drawdown_pct]")
	}
	if r.QuantityStep < 0 {
		return fmt.Errorf("risk.quantity_step must be >= 0")
	}
	return nil
}

func (s *SignalConfig) validate() error {
	if s.MaxLeverage <= 0 || s.MaxLeverage > 125 {
		return fmt.Errorf("signal.max_leverage must be in [1, 125]")
	}
	if s.SafeStopFraction <= 0 || s.SafeStopFraction >= 1 {
		return fmt.Errorf("signal.safe_stop_fraction must be in (0, 1)")
	}
	if s.ForceMaxLeverage && !s.LeverageOverrides {
		return fmt.Errorf("signal.force_max_leverage requires leverage_overrides")
	}
	return nil
}

func (c *ConnectionConfig) validate() error {
	if c.MinDelayMs <= 0 || c.MaxDelayMs < c.MinDelayMs {
		return fmt.Errorf("connection delays invalid: min=%dms max=%dms", c.MinDelayMs, c.MaxDelayMs)
	}
	if c.Factor <= 1 {
		return fmt.Errorf("connection.factor must be > 1")
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return fmt.Errorf("connection.jitter_factor must be in [0, 1]")
	}
	return nil
}

func (s *StateConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("state.path cannot be empty")
	}
	if _, ok := scheduler.ParseIntervalDuration(s.SaveInterval); !ok {
		return fmt.Errorf("state.save_interval is invalid: %s", s.SaveInterval)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}
