package store

import "gorm.io/datatypes"

type TradeStatus int

const (
	TradeStatusPending  TradeStatus = 0
	TradeStatusOpen     TradeStatus = 1
	TradeStatusPartial  TradeStatus = 2
	TradeStatusClosed   TradeStatus = 3
	TradeStatusRejected TradeStatus = 4
)

// TradeRecord is the journal row for one accepted or rejected signal.
type TradeRecord struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	SignalID      string         `gorm:"column:signal_id;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol;index"`
	Direction     string         `gorm:"column:direction"`
	EntryPrice    float64        `gorm:"column:entry_price"`
	StopLoss      float64        `gorm:"column:stop_loss"`
	Quantity      float64        `gorm:"column:quantity"`
	Leverage      int            `gorm:"column:leverage"`
	RiskAmount    float64        `gorm:"column:risk_amount"`
	Status        TradeStatus    `gorm:"column:status"`
	RejectReason  string         `gorm:"column:reject_reason"`
	WarningsJSON  datatypes.JSON `gorm:"column:warnings_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (TradeRecord) TableName() string { return "trades" }

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	ID             int64   `gorm:"column:id;primaryKey"`
	Equity         float64 `gorm:"column:equity"`
	Peak           float64 `gorm:"column:peak"`
	DayStart       float64 `gorm:"column:day_start"`
	DrawdownPct    float64 `gorm:"column:drawdown_pct"`
	RecordedAtUnix int64   `gorm:"column:recorded_at;index"`
}

func (EquityPoint) TableName() string { return "equity_points" }

// ReconciliationRecord is the audit row written after each startup
// reconciliation run.
type ReconciliationRecord struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	FullyReconciled bool           `gorm:"column:fully_reconciled"`
	MismatchesJSON  datatypes.JSON `gorm:"column:mismatches_json;type:TEXT"`
	ErrorsJSON      datatypes.JSON `gorm:"column:errors_json;type:TEXT"`
	CheckedAtUnix   int64          `gorm:"column:checked_at;index"`
}

func (ReconciliationRecord) TableName() string { return "reconciliations" }
