// Package signal validates inbound trade signals before they reach sizing and
// execution: leverage caps, liquidation safety, stop-loss placement and
// risk:reward checks.
package signal

const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// TradingSignal is an inbound trade signal. Validation never mutates it in
// place; it produces an adjusted copy.
type TradingSignal struct {
	ID               string    `json:"id"`
	Symbol           string    `json:"symbol"`
	Direction        string    `json:"direction"`
	Entry            float64   `json:"entry"`
	OriginalStopLoss float64   `json:"original_stop_loss"`
	Targets          []float64 `json:"targets"`
	OriginalLeverage int       `json:"original_leverage"`

	// Set by validation.
	AdjustedStopLoss float64  `json:"adjusted_stop_loss"`
	AdjustedLeverage int      `json:"adjusted_leverage"`
	LiquidationPrice float64  `json:"liquidation_price"`
	RiskRewardRatio  float64  `json:"risk_reward_ratio"`
	IsValid          bool     `json:"is_valid"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Result is the single-pass validation outcome: either a valid adjusted copy
// or a rejection with reason.
type Result struct {
	Signal TradingSignal `json:"signal"`
	Valid  bool          `json:"valid"`
	Reason string        `json:"reason,omitempty"`
}

func reject(sig TradingSignal, reason string) Result {
	sig.IsValid = false
	return Result{Signal: sig, Valid: false, Reason: reason}
}
