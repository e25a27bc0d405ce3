package state

import "time"

// CurrentVersion is written into every snapshot for forward schema evolution.
// Unknown fields in older or newer snapshots are tolerated on read.
const CurrentVersion = 2

// SavedPosition is the persisted projection of an open position, sufficient
// to re-derive expected exchange state after a restart.
type SavedPosition struct {
	Symbol            string  `json:"symbol"`
	Direction         string  `json:"direction"`
	Quantity          float64 `json:"quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	RiskAmount        float64 `json:"risk_amount"`
	EntryPrice        float64 `json:"entry_price"`
	StopLoss          float64 `json:"stop_loss"`
	BreakevenMoved    bool    `json:"breakeven_moved"`
}

// SavedOcoOrder is the persisted projection of a bracket-order pair.
type SavedOcoOrder struct {
	Symbol          string  `json:"symbol"`
	OrderListID     int64   `json:"order_list_id"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	Quantity        float64 `json:"quantity"`
}

// BotState is the single recoverable snapshot of process state. It is written
// after every state-affecting event and read once at startup.
type BotState struct {
	LastUpdate        time.Time       `json:"last_update"`
	CurrentEquity     float64         `json:"current_equity"`
	PeakEquity        float64         `json:"peak_equity"`
	DayStartEquity    float64         `json:"day_start_equity"`
	CurrentTradingDay string          `json:"current_trading_day"`
	OpenPositions     []SavedPosition `json:"open_positions"`
	ActiveOcoOrders   []SavedOcoOrder `json:"active_oco_orders"`
	NextTradeID       int             `json:"next_trade_id"`
	Symbol            string          `json:"symbol"`
	Version           int             `json:"version"`
}

// PositionMismatch pairs a persisted position with the quantity the exchange
// actually reports.
type PositionMismatch struct {
	Expected       SavedPosition `json:"expected"`
	ActualQuantity float64       `json:"actual_quantity"`
}

// ReconciliationResult reports drift between persisted and exchange truth.
// Derived, never persisted as part of BotState.
type ReconciliationResult struct {
	PositionsConfirmed []SavedPosition    `json:"positions_confirmed"`
	PositionsMismatch  []PositionMismatch `json:"positions_mismatch"`
	OcoOrdersActive    []SavedOcoOrder    `json:"oco_orders_active"`
	OcoOrdersMissing   []SavedOcoOrder    `json:"oco_orders_missing"`
	Errors             []string           `json:"errors,omitempty"`
	CheckedAt          time.Time          `json:"checked_at"`
}

// HasMismatches reports any position drift or missing bracket order.
func (r *ReconciliationResult) HasMismatches() bool {
	return len(r.PositionsMismatch) > 0 || len(r.OcoOrdersMissing) > 0
}

func (r *ReconciliationResult) IsFullyReconciled() bool {
	return !r.HasMismatches()
}
