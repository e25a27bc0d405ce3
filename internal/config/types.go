// Package config loads and validates the YAML configuration, with include
// merging and key-aware defaulting.
package config

import "strings"

// Config is the main configuration carrier.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Risk       RiskConfig       `yaml:"risk"`
	Signal     SignalConfig     `yaml:"signal"`
	Connection ConnectionConfig `yaml:"connection"`
	State      StateConfig      `yaml:"state"`
	Store      StoreConfig      `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
}

type ExchangeConfig struct {
	Name             string      `yaml:"name"`
	APIKey           string      `yaml:"api_key"`
	APISecret        string      `yaml:"api_secret"`
	RESTBaseURL      string      `yaml:"rest_base_url"`
	TimeoutSeconds   int         `yaml:"timeout_seconds"`
	QuoteAsset       string      `yaml:"quote_asset"`
	Symbols          []string    `yaml:"symbols"`
	StreamInterval   string      `yaml:"stream_interval"`
	BreakerThreshold int         `yaml:"breaker_threshold"`
	BreakerTimeoutS  int         `yaml:"breaker_timeout_seconds"`
	Proxy            ProxyConfig `yaml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `yaml:"enabled"`
	RESTURL string `yaml:"rest_url"`
	WSURL   string `yaml:"ws_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
	p.WSURL = strings.TrimSpace(p.WSURL)
}

type RiskConfig struct {
	RiskPerTradePct          float64 `yaml:"risk_per_trade_pct"`
	MaxPortfolioHeatPct      float64 `yaml:"max_portfolio_heat_pct"`
	MaxConcurrentPositions   int     `yaml:"max_concurrent_positions"`
	MaxDrawdownPct           float64 `yaml:"max_drawdown_pct"`
	MaxDailyDrawdownPct      float64 `yaml:"max_daily_drawdown_pct"`
	ATRDistanceAuthoritative bool    `yaml:"atr_distance_authoritative"`
	QuantityStep             float64 `yaml:"quantity_step"`
	TierProfilePath          string  `yaml:"tier_profile_path"`
}

type SignalConfig struct {
	LeverageOverrides   bool    `yaml:"leverage_overrides"`
	ForceMaxLeverage    bool    `yaml:"force_max_leverage"`
	MaxLeverage         int     `yaml:"max_leverage"`
	AlwaysRecomputeStop bool    `yaml:"always_recompute_stop"`
	SafeStopFraction    float64 `yaml:"safe_stop_fraction"`
	WarnRiskRewardBelow float64 `yaml:"warn_risk_reward_below"`
}

type ConnectionConfig struct {
	MinDelayMs            int     `yaml:"min_delay_ms"`
	MaxDelayMs            int     `yaml:"max_delay_ms"`
	Factor                float64 `yaml:"factor"`
	JitterFactor          float64 `yaml:"jitter_factor"`
	HealthIntervalSeconds int     `yaml:"health_interval_seconds"`
}

type StateConfig struct {
	Path               string `yaml:"path"`
	SaveInterval       string `yaml:"save_interval"`
	ReconcileOnStartup bool   `yaml:"reconcile_on_startup"`
	BlockOnMismatch    bool   `yaml:"block_on_mismatch"`
}

type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type ServerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	HTTPAddr string `yaml:"http_addr"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// keySet tracks field paths explicitly present in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the defaulting rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
