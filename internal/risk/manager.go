// Package risk owns the equity tracker and the open-position registry, turns
// validated trade opportunities into bounded position sizes and gates new
// trades behind portfolio-wide circuit breakers.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"kestrel/internal/equity"
	"kestrel/internal/logger"
)

// ErrInvalidStopDistance is returned when entry and stop-loss collapse to a
// non-positive distance.
var ErrInvalidStopDistance = errors.New("risk: invalid stop distance")

const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Config holds the portfolio limits enforced by the manager.
type Config struct {
	RiskPerTradePercent     float64
	MaxPortfolioHeatPercent float64
	MaxConcurrentPositions  int
	MaxDrawdownPercent      float64
	MaxDailyDrawdownPercent float64
	// ATRDistanceAuthoritative makes a provided ATR distance override the
	// entry/stop distance even when it is smaller.
	ATRDistanceAuthoritative bool
	// QuantityStep rounds calculated quantities down to the exchange lot step.
	// Zero disables rounding.
	QuantityStep float64
}

// Position is one open position. Only the manager mutates it.
type Position struct {
	Symbol            string  `json:"symbol"`
	Direction         string  `json:"direction"`
	Quantity          float64 `json:"quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	RiskAmount        float64 `json:"risk_amount"`
	EntryPrice        float64 `json:"entry_price"`
	StopLoss          float64 `json:"stop_loss"`
	BreakevenMoved    bool    `json:"breakeven_moved"`
	CurrentPrice      float64 `json:"current_price"`
}

// Sizing is the result of a position-size calculation.
type Sizing struct {
	Quantity             float64
	RiskAmount           float64
	StopDistance         float64
	EffectiveRiskPercent float64
}

// Metrics is a read-only view for the status API.
type Metrics struct {
	Equity               equity.Snapshot `json:"equity"`
	UnrealizedPnL        float64         `json:"unrealized_pnl"`
	TotalEquity          float64         `json:"total_equity"`
	DrawdownPercent      float64         `json:"drawdown_percent"`
	DailyDrawdownPercent float64         `json:"daily_drawdown_percent"`
	PortfolioHeat        float64         `json:"portfolio_heat"`
	OpenPositions        int             `json:"open_positions"`
	TotalRiskAmount      float64         `json:"total_risk_amount"`
	CanTrade             bool            `json:"can_trade"`
	BlockReason          string          `json:"block_reason,omitempty"`
}

type Manager struct {
	cfg     Config
	tracker *equity.Tracker

	mu         sync.RWMutex
	policy     Policy
	positions  map[string]*Position
	tradingDay string
}

func NewManager(cfg Config, policy Policy, tracker *equity.Tracker) *Manager {
	return &Manager{
		cfg:        cfg,
		policy:     policy,
		tracker:    tracker,
		positions:  make(map[string]*Position),
		tradingDay: tradingDayOf(time.Now()),
	}
}

func (m *Manager) Tracker() *equity.Tracker { return m.tracker }

// SetPolicy swaps the drawdown tier policy. Used by the profile hot-reload.
func (m *Manager) SetPolicy(p Policy) {
	m.mu.Lock()
	m.policy = p
	m.mu.Unlock()
	logger.Infof("risk: drawdown policy reloaded (%d tiers)", len(p.tiers))
}

// CalculatePositionSize sizes a trade so that hitting the stop loses the
// drawdown-scaled risk fraction of current equity. atr <= 0 means no ATR
// distance is available.
func (m *Manager) CalculatePositionSize(entryPrice, stopLossPrice, atr float64) (Sizing, error) {
	stopDistance := math.Abs(entryPrice - stopLossPrice)
	if atr > 0 && (m.cfg.ATRDistanceAuthoritative || atr > stopDistance) {
		stopDistance = atr
	}
	if stopDistance <= 0 {
		return Sizing{}, fmt.Errorf("%w: entry=%.8f stop=%.8f atr=%.8f", ErrInvalidStopDistance, entryPrice, stopLossPrice, atr)
	}

	m.mu.RLock()
	policy := m.policy
	m.mu.RUnlock()

	// One snapshot so the drawdown tier and the equity base cannot come from
	// two different tracker states.
	snap := m.tracker.Snapshot()
	effectivePercent := m.cfg.RiskPerTradePercent * policy.MultiplierFor(snap.DrawdownPercent())
	riskAmount := snap.Current * effectivePercent / 100
	quantity := roundStep(riskAmount/stopDistance, m.cfg.QuantityStep)

	return Sizing{
		Quantity:             quantity,
		RiskAmount:           riskAmount,
		StopDistance:         stopDistance,
		EffectiveRiskPercent: effectivePercent,
	}, nil
}

// CanOpenPosition reports whether a new position may be opened and, when not,
// which circuit breaker blocks it. Breached breakers stop new positions only;
// existing positions are never force-closed here.
func (m *Manager) CanOpenPosition() (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if heat := m.portfolioHeatLocked(); heat >= m.cfg.MaxPortfolioHeatPercent {
		return false, fmt.Sprintf("portfolio heat %.2f%% >= limit %.2f%%", heat, m.cfg.MaxPortfolioHeatPercent)
	}
	if len(m.positions) >= m.cfg.MaxConcurrentPositions {
		return false, fmt.Sprintf("max concurrent positions reached (%d/%d)", len(m.positions), m.cfg.MaxConcurrentPositions)
	}
	if dd := m.tracker.DrawdownPercent(); dd >= m.cfg.MaxDrawdownPercent {
		return false, fmt.Sprintf("total drawdown %.2f%% >= limit %.2f%%", dd, m.cfg.MaxDrawdownPercent)
	}
	if dd := m.tracker.DailyDrawdownPercent(); dd >= m.cfg.MaxDailyDrawdownPercent {
		return false, fmt.Sprintf("daily drawdown %.2f%% >= limit %.2f%%", dd, m.cfg.MaxDailyDrawdownPercent)
	}
	return true, ""
}

// CheckDayRollover resets daily tracking when the trading day changes.
// Returns true on rollover.
func (m *Manager) CheckDayRollover(now time.Time) bool {
	day := tradingDayOf(now)
	m.mu.Lock()
	defer m.mu.Unlock()
	if day == m.tradingDay {
		return false
	}
	m.tradingDay = day
	m.tracker.ResetDailyTracking()
	logger.Infof("risk: trading day rolled over to %s, daily tracking reset", day)
	return true
}

func (m *Manager) TradingDay() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tradingDay
}

// RestoreTradingDay re-seeds the rollover marker from persisted state.
func (m *Manager) RestoreTradingDay(day string) {
	if day == "" {
		return
	}
	m.mu.Lock()
	m.tradingDay = day
	m.mu.Unlock()
}

func (m *Manager) AddPosition(p Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[p.Symbol]; exists {
		return fmt.Errorf("risk: position for %s already open", p.Symbol)
	}
	if p.RemainingQuantity == 0 {
		p.RemainingQuantity = p.Quantity
	}
	if p.CurrentPrice == 0 {
		p.CurrentPrice = p.EntryPrice
	}
	cp := p
	m.positions[p.Symbol] = &cp
	return nil
}

func (m *Manager) RemovePosition(symbol string) {
	m.mu.Lock()
	delete(m.positions, symbol)
	m.mu.Unlock()
}

// UpdatePositionAfterPartialExit reduces the remaining quantity and scales the
// at-risk amount proportionally.
func (m *Manager) UpdatePositionAfterPartialExit(symbol string, exitedQuantity float64, breakevenMoved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok {
		return fmt.Errorf("risk: no open position for %s", symbol)
	}
	if exitedQuantity <= 0 || exitedQuantity > p.RemainingQuantity {
		return fmt.Errorf("risk: invalid exit quantity %.8f for %s (remaining %.8f)", exitedQuantity, symbol, p.RemainingQuantity)
	}
	remaining := p.RemainingQuantity - exitedQuantity
	if p.RemainingQuantity > 0 {
		p.RiskAmount *= remaining / p.RemainingQuantity
	}
	p.RemainingQuantity = remaining
	if breakevenMoved {
		p.BreakevenMoved = true
		p.RiskAmount = 0
	}
	if remaining <= 0 {
		delete(m.positions, symbol)
	}
	return nil
}

func (m *Manager) UpdatePositionPrice(symbol string, price float64) {
	m.mu.Lock()
	if p, ok := m.positions[symbol]; ok {
		p.CurrentPrice = price
	}
	m.mu.Unlock()
}

func (m *Manager) GetPosition(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.positions[symbol]; ok {
		return *p, true
	}
	return Position{}, false
}

// OpenPositions returns a copy of the registry.
func (m *Manager) OpenPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

func (m *Manager) OpenPositionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// PortfolioHeat is the aggregate at-risk capital as a percentage of equity.
func (m *Manager) PortfolioHeat() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.portfolioHeatLocked()
}

func (m *Manager) portfolioHeatLocked() float64 {
	eq := m.tracker.Current()
	if eq <= 0 {
		return 0
	}
	var total float64
	for _, p := range m.positions {
		total += p.RiskAmount
	}
	return total / eq * 100
}

func (m *Manager) GetTotalRiskAmount() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total float64
	for _, p := range m.positions {
		total += p.RiskAmount
	}
	return total
}

// GetUnrealizedPnL sums direction-signed open PnL across positions.
func (m *Manager) GetUnrealizedPnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total float64
	for _, p := range m.positions {
		diff := p.CurrentPrice - p.EntryPrice
		if p.Direction == DirectionShort {
			diff = -diff
		}
		total += diff * p.RemainingQuantity
	}
	return total
}

func (m *Manager) GetTotalEquity() float64 {
	return m.tracker.Current() + m.GetUnrealizedPnL()
}

func (m *Manager) GetTotalDrawdownPercent() float64 {
	return m.tracker.DrawdownPercent()
}

func (m *Manager) Metrics() Metrics {
	canTrade, reason := m.CanOpenPosition()
	return Metrics{
		Equity:               m.tracker.Snapshot(),
		UnrealizedPnL:        m.GetUnrealizedPnL(),
		TotalEquity:          m.GetTotalEquity(),
		DrawdownPercent:      m.tracker.DrawdownPercent(),
		DailyDrawdownPercent: m.tracker.DailyDrawdownPercent(),
		PortfolioHeat:        m.PortfolioHeat(),
		OpenPositions:        m.OpenPositionCount(),
		TotalRiskAmount:      m.GetTotalRiskAmount(),
		CanTrade:             canTrade,
		BlockReason:          reason,
	}
}

func tradingDayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// roundStep floors qty to a multiple of step. Exchanges reject quantities off
// the lot step, so rounding up is never safe.
func roundStep(qty, step float64) float64 {
	if step <= 0 || qty <= 0 {
		return qty
	}
	d := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	rounded, _ := d.Div(s).Floor().Mul(s).Float64()
	return rounded
}
