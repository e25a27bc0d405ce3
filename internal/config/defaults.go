package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppLogPath  = "/data/logs/kestrel.log"

	defaultExchangeName    = "binance"
	defaultExchangeTimeout = 10
	defaultQuoteAsset      = "USDT"
	defaultStreamInterval  = "1m"
	defaultBreakerFails    = 5
	defaultBreakerTimeout  = 30

	defaultRiskPerTrade  = 1.0
	defaultMaxHeat       = 6.0
	defaultMaxPositions  = 5
	defaultMaxDrawdown   = 20.0
	defaultDailyDrawdown = 5.0

	defaultMaxLeverage      = 10
	defaultSafeStopFraction = 0.7
	defaultWarnRiskReward   = 1.0

	defaultMinDelayMs     = 500
	defaultMaxDelayMs     = 10000
	defaultBackoffFactor  = 2.0
	defaultJitterFactor   = 0.2
	defaultHealthInterval = 30

	defaultStatePath    = "/data/state/kestrel_state.json"
	defaultSaveInterval = "30s"
	defaultStorePath    = "/data/db/kestrel_journal.db"
	defaultHTTPAddr     = ":9985"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Signal.applyDefaults(keys)
	c.Connection.applyDefaults(keys)
	c.State.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Server.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	e.Proxy.normalize()
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.name", &e.Name, defaultExchangeName),
		stringFieldDefault("exchange.quote_asset", &e.QuoteAsset, defaultQuoteAsset),
		stringFieldDefault("exchange.stream_interval", &e.StreamInterval, defaultStreamInterval),
		fieldDefault{
			key:   "exchange.timeout_seconds",
			need:  func() bool { return e.TimeoutSeconds <= 0 },
			apply: func() { e.TimeoutSeconds = defaultExchangeTimeout },
		},
		fieldDefault{
			key:   "exchange.breaker_threshold",
			need:  func() bool { return e.BreakerThreshold <= 0 },
			apply: func() { e.BreakerThreshold = defaultBreakerFails },
		},
		fieldDefault{
			key:   "exchange.breaker_timeout_seconds",
			need:  func() bool { return e.BreakerTimeoutS <= 0 },
			apply: func() { e.BreakerTimeoutS = defaultBreakerTimeout },
		},
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.risk_per_trade_pct",
			need:  func() bool { return r.RiskPerTradePct <= 0 },
			apply: func() { r.RiskPerTradePct = defaultRiskPerTrade },
		},
		fieldDefault{
			key:   "risk.max_portfolio_heat_pct",
			need:  func() bool { return r.MaxPortfolioHeatPct <= 0 },
			apply: func() { r.MaxPortfolioHeatPct = defaultMaxHeat },
		},
		fieldDefault{
			key:   "risk.max_concurrent_positions",
			need:  func() bool { return r.MaxConcurrentPositions <= 0 },
			apply: func() { r.MaxConcurrentPositions = defaultMaxPositions },
		},
		fieldDefault{
			key:   "risk.max_drawdown_pct",
			need:  func() bool { return r.MaxDrawdownPct <= 0 },
			apply: func() { r.MaxDrawdownPct = defaultMaxDrawdown },
		},
		fieldDefault{
			key:   "risk.max_daily_drawdown_pct",
			need:  func() bool { return r.MaxDailyDrawdownPct <= 0 },
			apply: func() { r.MaxDailyDrawdownPct = defaultDailyDrawdown },
		},
	)
	if r.QuantityStep < 0 {
		r.QuantityStep = 0
	}
}

func (s *SignalConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "signal.max_leverage",
			need:  func() bool { return s.MaxLeverage <= 0 },
			apply: func() { s.MaxLeverage = defaultMaxLeverage },
		},
		fieldDefault{
			key:   "signal.safe_stop_fraction",
			need:  func() bool { return s.SafeStopFraction <= 0 || s.SafeStopFraction >= 1 },
			apply: func() { s.SafeStopFraction = defaultSafeStopFraction },
		},
		fieldDefault{
			key:   "signal.warn_risk_reward_below",
			need:  func() bool { return s.WarnRiskRewardBelow <= 0 },
			apply: func() { s.WarnRiskRewardBelow = defaultWarnRiskReward },
		},
	)
}

func (c *ConnectionConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "connection.min_delay_ms",
			need:  func() bool { return c.MinDelayMs <= 0 },
			apply: func() { c.MinDelayMs = defaultMinDelayMs },
		},
		fieldDefault{
			key:   "connection.max_delay_ms",
			need:  func() bool { return c.MaxDelayMs <= 0 },
			apply: func() { c.MaxDelayMs = defaultMaxDelayMs },
		},
		fieldDefault{
			key:   "connection.factor",
			need:  func() bool { return c.Factor <= 1 },
			apply: func() { c.Factor = defaultBackoffFactor },
		},
		fieldDefault{
			key:   "connection.jitter_factor",
			need:  func() bool { return c.JitterFactor <= 0 },
			apply: func() { c.JitterFactor = defaultJitterFactor },
		},
		fieldDefault{
			key:   "connection.health_interval_seconds",
			need:  func() bool { return c.HealthIntervalSeconds <= 0 },
			apply: func() { c.HealthIntervalSeconds = defaultHealthInterval },
		},
	)
}

func (s *StateConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("state.path", &s.Path, defaultStatePath),
		stringFieldDefault("state.save_interval", &s.SaveInterval, defaultSaveInterval),
		boolFieldDefault("state.reconcile_on_startup", &s.ReconcileOnStartup, true),
		boolFieldDefault("state.block_on_mismatch", &s.BlockOnMismatch, true),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("store.enabled", &s.Enabled, true),
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (s *ServerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("server.enabled", &s.Enabled, true),
		stringFieldDefault("server.http_addr", &s.HTTPAddr, defaultHTTPAddr),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
