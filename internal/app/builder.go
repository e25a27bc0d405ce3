// Package app wires configuration, exchange access, risk, state and transport
// into one runnable service.
package app

import (
	"fmt"
	"time"

	"kestrel/internal/config"
	"kestrel/internal/conn"
	"kestrel/internal/equity"
	"kestrel/internal/exchange"
	"kestrel/internal/exchange/binance"
	"kestrel/internal/logger"
	"kestrel/internal/notifier"
	"kestrel/internal/pkg/circuit"
	"kestrel/internal/risk"
	"kestrel/internal/scheduler"
	"kestrel/internal/signal"
	"kestrel/internal/state"
	"kestrel/internal/store"
	statushttp "kestrel/internal/transport/http"
)

// New builds the application from a validated config. Nothing is started; Run
// does that.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	a := &App{
		cfg:     cfg,
		klines:  make(chan exchange.Kline, 512),
		tracker: equity.NewTracker(0),
	}

	var sink notifier.TextNotifier = notifier.Nop{}
	if cfg.Notify.Telegram.Enabled {
		sink = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}
	a.alerter = notifier.NewAlerter("kestrel", sink)

	policy := risk.Policy{}
	if cfg.Risk.TierProfilePath != "" {
		watcher, err := risk.WatchProfile(cfg.Risk.TierProfilePath)
		if err != nil {
			return nil, fmt.Errorf("loading risk tier profile failed: %w", err)
		}
		policy = watcher.Policy()
		a.profile = watcher
	}
	a.riskMgr = risk.NewManager(risk.Config{
		RiskPerTradePercent:      cfg.Risk.RiskPerTradePct,
		MaxPortfolioHeatPercent:  cfg.Risk.MaxPortfolioHeatPct,
		MaxConcurrentPositions:   cfg.Risk.MaxConcurrentPositions,
		MaxDrawdownPercent:       cfg.Risk.MaxDrawdownPct,
		MaxDailyDrawdownPercent:  cfg.Risk.MaxDailyDrawdownPct,
		ATRDistanceAuthoritative: cfg.Risk.ATRDistanceAuthoritative,
		QuantityStep:             cfg.Risk.QuantityStep,
	}, policy, a.tracker)
	if a.profile != nil {
		a.profile.OnChange(a.riskMgr.SetPolicy)
	}

	a.validator = signal.NewValidator(signal.Config{
		OverridesEnabled:    cfg.Signal.LeverageOverrides,
		ForceMaxLeverage:    cfg.Signal.ForceMaxLeverage,
		MaxLeverage:         cfg.Signal.MaxLeverage,
		AlwaysRecomputeStop: cfg.Signal.AlwaysRecomputeStop,
		SafeStopFraction:    cfg.Signal.SafeStopFraction,
		WarnRiskRewardBelow: cfg.Signal.WarnRiskRewardBelow,
	})

	stateMgr, err := state.NewManager(cfg.State.Path)
	if err != nil {
		return nil, err
	}
	a.stateMgr = stateMgr

	client, err := binance.New(binance.Config{
		APIKey:           cfg.Exchange.APIKey,
		APISecret:        cfg.Exchange.APISecret,
		RESTBaseURL:      cfg.Exchange.RESTBaseURL,
		HTTPTimeout:      time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
		ProxyEnabled:     cfg.Exchange.Proxy.Enabled,
		RESTProxyURL:     cfg.Exchange.Proxy.RESTURL,
		WSProxyURL:       cfg.Exchange.Proxy.WSURL,
		BreakerThreshold: cfg.Exchange.BreakerThreshold,
		BreakerTimeout:   time.Duration(cfg.Exchange.BreakerTimeoutS) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("building exchange client failed: %w", err)
	}
	client.Breaker().SetStateChangeHandler(func(name string, from, to circuit.State) {
		logger.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		a.alerter.CircuitBreakerChanged(name, from.String(), to.String())
	})
	a.exchange = client
	a.reconciler = state.NewReconciler(client)

	a.connMgr = conn.NewManager(conn.Config{
		Name:           "binance-klines",
		MinDelay:       time.Duration(cfg.Connection.MinDelayMs) * time.Millisecond,
		MaxDelay:       time.Duration(cfg.Connection.MaxDelayMs) * time.Millisecond,
		Factor:         cfg.Connection.Factor,
		JitterFactor:   cfg.Connection.JitterFactor,
		HealthInterval: time.Duration(cfg.Connection.HealthIntervalSeconds) * time.Second,
	}, client.KlineConnector(cfg.Exchange.Symbols, cfg.Exchange.StreamInterval, a.klines), &connObserver{app: a})

	if cfg.Store.Enabled {
		journal, err := store.New(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("opening journal store failed: %w", err)
		}
		a.journal = journal
	}

	if cfg.Server.Enabled {
		var j statushttp.Journal
		if a.journal != nil {
			j = a.journal
		}
		srv, err := statushttp.NewServer(statushttp.ServerConfig{
			Addr:     cfg.Server.HTTPAddr,
			Provider: a,
			Journal:  j,
		})
		if err != nil {
			return nil, err
		}
		a.httpSrv = srv
	}

	if a.saveInterval, _ = scheduler.ParseIntervalDuration(cfg.State.SaveInterval); a.saveInterval <= 0 {
		a.saveInterval = 30 * time.Second
	}
	return a, nil
}

// connObserver forwards connection lifecycle events into alerting and the
// trading block.
type connObserver struct {
	app *App
}

func (o *connObserver) OnConnected(reconnected bool, downtime time.Duration) {
	if reconnected {
		o.app.alerter.ConnectionRestored(downtime)
	}
	o.app.setConnectionBlock("")
}

func (o *connObserver) OnDisconnected(err error) {
	o.app.setConnectionBlock(fmt.Sprintf("market data disconnected: %v", err))
}

func (o *connObserver) OnCriticalFailure(reason string) {
	o.app.setConnectionBlock(reason)
	o.app.alerter.ConnectionCriticalFailure(reason)
}
