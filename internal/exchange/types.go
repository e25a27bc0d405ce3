// Package exchange defines the collaborator interfaces the core consumes.
// Concrete adapters live in subpackages; callers resolve one implementation at
// startup through the adapter registry in config.
package exchange

import "context"

// OpenOrder is the minimal projection of a live order needed for
// reconciliation.
type OpenOrder struct {
	OrderID     int64  `json:"order_id"`
	OrderListID int64  `json:"order_list_id"`
	Symbol      string `json:"symbol"`
	Status      string `json:"status"`
}

// Kline is one market-data candle update delivered on the stream.
type Kline struct {
	Symbol    string
	Interval  string
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Final     bool
}

// Query is the read-only exchange surface used by reconciliation and risk.
type Query interface {
	GetBalance(ctx context.Context, asset string) (float64, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
}
