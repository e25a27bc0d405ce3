package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"kestrel/internal/config"
	"kestrel/internal/conn"
	"kestrel/internal/equity"
	"kestrel/internal/exchange"
	"kestrel/internal/exchange/binance"
	"kestrel/internal/logger"
	"kestrel/internal/notifier"
	"kestrel/internal/risk"
	"kestrel/internal/scheduler"
	"kestrel/internal/signal"
	"kestrel/internal/state"
	"kestrel/internal/store"
	statushttp "kestrel/internal/transport/http"
)

// App orchestrates the engine: restore state, reconcile against the exchange,
// keep the market stream alive and gate inbound signals through risk.
type App struct {
	cfg        *config.Config
	tracker    *equity.Tracker
	riskMgr    *risk.Manager
	validator  *signal.Validator
	stateMgr   *state.Manager
	reconciler *state.Reconciler
	exchange   *binance.Client
	connMgr    *conn.Manager
	alerter    *notifier.Alerter
	profile    *risk.ProfileWatcher
	journal    *store.Store
	httpSrv    *statushttp.Server

	klines       chan exchange.Kline
	saveInterval time.Duration

	mu              sync.Mutex
	lastRecon       *state.ReconciliationResult
	reconBlocked    bool
	connBlockReason string
	drawdownAlerted bool
	dailyAlerted    bool
	ocoOrders       []state.SavedOcoOrder
	nextTradeID     int
	symbol          string
}

// Run bootstraps from persisted state and drives all loops until ctx is
// cancelled. A final state save runs during shutdown.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.connMgr.Start(gctx); err != nil && !errors.Is(err, conn.ErrNotConnected) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		a.connMgr.RunHealthLoop(gctx)
		return nil
	})
	group.Go(func() error {
		scheduler.RunEvery(gctx, a.saveInterval, a.periodicSave)
		return nil
	})
	group.Go(func() error {
		a.consumeKlines(gctx)
		return nil
	})
	if a.httpSrv != nil {
		group.Go(func() error {
			if err := a.httpSrv.Start(gctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}

	err := group.Wait()
	a.shutdown()
	return err
}

// bootstrap loads the persisted snapshot, restores the risk state and runs the
// startup reconciliation.
func (a *App) bootstrap(ctx context.Context) error {
	st, err := a.stateMgr.LoadState(ctx)
	switch {
	case errors.Is(err, state.ErrNoState):
		logger.Infof("no persisted state, starting fresh")
		a.seedEquityFromExchange(ctx)
	case err != nil:
		return fmt.Errorf("loading state failed: %w", err)
	default:
		a.restoreFromState(st)
		logger.Infof("state restored: equity=%.2f positions=%d oco=%d day=%s",
			st.CurrentEquity, len(st.OpenPositions), len(st.ActiveOcoOrders), st.CurrentTradingDay)
	}

	if a.cfg.State.ReconcileOnStartup {
		a.reconcile(ctx, st)
	}
	return nil
}

func (a *App) restoreFromState(st *state.BotState) {
	a.tracker.RestoreState(st.CurrentEquity, st.PeakEquity, st.DayStartEquity)
	a.riskMgr.RestoreTradingDay(st.CurrentTradingDay)
	for _, p := range st.OpenPositions {
		if err := a.riskMgr.AddPosition(risk.Position{
			Symbol:            p.Symbol,
			Direction:         p.Direction,
			Quantity:          p.Quantity,
			RemainingQuantity: p.RemainingQuantity,
			RiskAmount:        p.RiskAmount,
			EntryPrice:        p.EntryPrice,
			StopLoss:          p.StopLoss,
			BreakevenMoved:    p.BreakevenMoved,
		}); err != nil {
			logger.Warnf("restoring position %s failed: %v", p.Symbol, err)
		}
	}

	a.mu.Lock()
	a.ocoOrders = append([]state.SavedOcoOrder(nil), st.ActiveOcoOrders...)
	a.nextTradeID = st.NextTradeID
	a.symbol = st.Symbol
	a.mu.Unlock()

	// The day may have rolled over while the process was down.
	a.riskMgr.CheckDayRollover(time.Now())
}

// seedEquityFromExchange initializes the tracker from the live quote balance.
// Failure leaves equity at zero, which keeps signal validation rejecting until
// an operator intervenes.
func (a *App) seedEquityFromExchange(ctx context.Context) {
	qctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	balance, err := a.exchange.GetBalance(qctx, a.cfg.Exchange.QuoteAsset)
	if err != nil {
		logger.Errorf("seeding equity from exchange failed: %v", err)
		return
	}
	a.tracker.Update(balance)
	logger.Infof("equity seeded from exchange: %.2f %s", balance, a.cfg.Exchange.QuoteAsset)
}

func (a *App) reconcile(ctx context.Context, st *state.BotState) {
	rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	result := a.reconciler.Reconcile(rctx, st)

	a.mu.Lock()
	a.lastRecon = result
	a.reconBlocked = a.cfg.State.BlockOnMismatch && result.HasMismatches()
	a.mu.Unlock()

	logger.InfoBlock(result.Summary())
	if result.HasMismatches() {
		a.alerter.ReconciliationMismatch(result.Summary())
	}
	if a.journal != nil {
		if err := a.journal.RecordReconciliation(result.IsFullyReconciled(), result.PositionsMismatch, result.Errors, result.CheckedAt); err != nil {
			logger.Warnf("recording reconciliation failed: %v", err)
		}
	}
}

// ProcessSignal runs one raw signal document through the full pipeline:
// parse, validate, risk gate, size, register, journal, persist.
func (a *App) ProcessSignal(ctx context.Context, raw []byte) (signal.Result, error) {
	sig, err := signal.ParseRaw(raw)
	if err != nil {
		logger.Warnf("signal rejected at parse: %v", err)
		return signal.Result{}, err
	}

	result := a.validator.Validate(sig, a.tracker.Current())
	if !result.Valid {
		logger.Warnf("signal %s rejected: %s", sig.ID, result.Reason)
		a.alerter.SignalRejected(sig.Symbol, result.Reason)
		a.journalRejection(result)
		return result, nil
	}

	if blocked, reason := a.TradingBlocked(); blocked {
		result = a.rejectValidated(result, "trading blocked: "+reason)
		return result, nil
	}
	if ok, reason := a.riskMgr.CanOpenPosition(); !ok {
		result = a.rejectValidated(result, "risk breaker: "+reason)
		return result, nil
	}

	sizing, err := a.riskMgr.CalculatePositionSize(result.Signal.Entry, result.Signal.AdjustedStopLoss, 0)
	if err != nil {
		result = a.rejectValidated(result, err.Error())
		return result, nil
	}
	if sizing.Quantity <= 0 {
		result = a.rejectValidated(result, "calculated quantity rounds to zero")
		return result, nil
	}

	pos := risk.Position{
		Symbol:     result.Signal.Symbol,
		Direction:  result.Signal.Direction,
		Quantity:   sizing.Quantity,
		RiskAmount: sizing.RiskAmount,
		EntryPrice: result.Signal.Entry,
		StopLoss:   result.Signal.AdjustedStopLoss,
	}
	if err := a.riskMgr.AddPosition(pos); err != nil {
		result = a.rejectValidated(result, err.Error())
		return result, nil
	}

	a.mu.Lock()
	a.nextTradeID++
	a.symbol = result.Signal.Symbol
	a.mu.Unlock()

	logger.Infof("signal %s accepted: %s %s qty=%.8f risk=%.2f (%.2f%%)",
		result.Signal.ID, result.Signal.Direction, result.Signal.Symbol,
		sizing.Quantity, sizing.RiskAmount, sizing.EffectiveRiskPercent)
	a.journalTrade(result, sizing)
	a.saveState(ctx)
	return result, nil
}

func (a *App) rejectValidated(r signal.Result, reason string) signal.Result {
	logger.Warnf("signal %s not actionable: %s", r.Signal.ID, reason)
	a.alerter.SignalRejected(r.Signal.Symbol, reason)
	r.Valid = false
	r.Reason = reason
	r.Signal.IsValid = false
	a.journalRejection(r)
	return r
}

func (a *App) journalTrade(r signal.Result, sizing risk.Sizing) {
	if a.journal == nil {
		return
	}
	warnings, _ := json.Marshal(r.Signal.Warnings)
	rec := &store.TradeRecord{
		SignalID:     r.Signal.ID,
		Symbol:       r.Signal.Symbol,
		Direction:    r.Signal.Direction,
		EntryPrice:   r.Signal.Entry,
		StopLoss:     r.Signal.AdjustedStopLoss,
		Quantity:     sizing.Quantity,
		Leverage:     r.Signal.AdjustedLeverage,
		RiskAmount:   sizing.RiskAmount,
		Status:       store.TradeStatusOpen,
		WarningsJSON: datatypes.JSON(warnings),
	}
	if err := a.journal.SaveTrade(rec); err != nil {
		logger.Warnf("journaling trade %s failed: %v", r.Signal.ID, err)
	}
}

func (a *App) journalRejection(r signal.Result) {
	if a.journal == nil || r.Signal.ID == "" {
		return
	}
	rec := &store.TradeRecord{
		SignalID:     r.Signal.ID,
		Symbol:       r.Signal.Symbol,
		Direction:    r.Signal.Direction,
		EntryPrice:   r.Signal.Entry,
		Status:       store.TradeStatusRejected,
		RejectReason: r.Reason,
	}
	if err := a.journal.SaveTrade(rec); err != nil {
		logger.Warnf("journaling rejection %s failed: %v", r.Signal.ID, err)
	}
}

// consumeKlines feeds stream prices into open positions and checks breaker
// side effects on each update.
func (a *App) consumeKlines(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case kl := <-a.klines:
			a.riskMgr.UpdatePositionPrice(kl.Symbol, kl.Close)
			if kl.Final {
				a.riskMgr.CheckDayRollover(time.Now())
				a.checkDrawdownAlerts()
			}
		}
	}
}

// checkDrawdownAlerts fires one alert per sustained breach. A latch re-arms
// as soon as its limit is no longer exceeded, so the next breach (including a
// fresh daily breach after the rollover reset) alerts again.
func (a *App) checkDrawdownAlerts() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tracker.IsDrawdownExceeded(a.cfg.Risk.MaxDrawdownPct) {
		if !a.drawdownAlerted {
			a.drawdownAlerted = true
			a.alerter.DrawdownLimitBreached("total", a.tracker.DrawdownPercent(), a.cfg.Risk.MaxDrawdownPct)
		}
	} else {
		a.drawdownAlerted = false
	}
	if a.tracker.IsDailyDrawdownExceeded(a.cfg.Risk.MaxDailyDrawdownPct) {
		if !a.dailyAlerted {
			a.dailyAlerted = true
			a.alerter.DrawdownLimitBreached("daily", a.tracker.DailyDrawdownPercent(), a.cfg.Risk.MaxDailyDrawdownPct)
		}
	} else {
		a.dailyAlerted = false
	}
}

func (a *App) periodicSave(ctx context.Context) {
	a.saveState(ctx)
	if a.journal != nil {
		snap := a.tracker.Snapshot()
		if err := a.journal.RecordEquity(store.EquityPoint{
			Equity:      snap.Current,
			Peak:        snap.Peak,
			DayStart:    snap.DayStart,
			DrawdownPct: a.tracker.DrawdownPercent(),
		}); err != nil {
			logger.Warnf("recording equity point failed: %v", err)
		}
	}
}

func (a *App) saveState(ctx context.Context) {
	st := a.buildState()
	if err := a.stateMgr.SaveState(ctx, st); err != nil {
		logger.Errorf("saving state failed: %v", err)
	}
}

func (a *App) buildState() *state.BotState {
	positions := a.riskMgr.OpenPositions()
	saved := make([]state.SavedPosition, 0, len(positions))
	for _, p := range positions {
		saved = append(saved, state.SavedPosition{
			Symbol:            p.Symbol,
			Direction:         p.Direction,
			Quantity:          p.Quantity,
			RemainingQuantity: p.RemainingQuantity,
			RiskAmount:        p.RiskAmount,
			EntryPrice:        p.EntryPrice,
			StopLoss:          p.StopLoss,
			BreakevenMoved:    p.BreakevenMoved,
		})
	}
	snap := a.tracker.Snapshot()

	a.mu.Lock()
	defer a.mu.Unlock()
	return &state.BotState{
		CurrentEquity:     snap.Current,
		PeakEquity:        snap.Peak,
		DayStartEquity:    snap.DayStart,
		CurrentTradingDay: a.riskMgr.TradingDay(),
		OpenPositions:     saved,
		ActiveOcoOrders:   append([]state.SavedOcoOrder(nil), a.ocoOrders...),
		NextTradeID:       a.nextTradeID,
		Symbol:            a.symbol,
	}
}

// shutdown flushes a final save with a fresh context so cancellation does not
// abort it, then releases resources.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.saveState(ctx)
	a.connMgr.Stop()
	if a.journal != nil {
		_ = a.journal.Close()
	}
	logger.Infof("shutdown complete, state flushed")
}

func (a *App) setConnectionBlock(reason string) {
	a.mu.Lock()
	a.connBlockReason = reason
	a.mu.Unlock()
}

// TradingBlocked reports the app-level gates: reconciliation mismatch and
// connection loss. Risk breakers are reported separately via metrics.
func (a *App) TradingBlocked() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reconBlocked {
		return true, "state reconciliation mismatch, manual resolution required"
	}
	if a.connBlockReason != "" {
		return true, a.connBlockReason
	}
	return false, ""
}

// ClearReconciliationBlock is the operator override after manual resolution.
func (a *App) ClearReconciliationBlock() {
	a.mu.Lock()
	a.reconBlocked = false
	a.mu.Unlock()
	logger.Infof("reconciliation block cleared by operator")
}

func (a *App) RiskMetrics() risk.Metrics      { return a.riskMgr.Metrics() }
func (a *App) OpenPositions() []risk.Position { return a.riskMgr.OpenPositions() }
func (a *App) ConnectionStats() conn.Stats    { return a.connMgr.Stats() }

func (a *App) LastReconciliation() *state.ReconciliationResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRecon
}
