package state

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"kestrel/internal/exchange"
	"kestrel/internal/logger"
)

// quantityEpsilon is the tolerance when comparing a persisted remaining
// quantity against the live exchange balance.
const quantityEpsilon = 1e-4

// quoteAssets are stripped from a symbol to derive its base asset.
var quoteAssets = []string{"USDT", "USDC", "BUSD", "BTC", "ETH"}

// Reconciler compares a loaded snapshot against live exchange queries. It
// never mutates persisted state; it only reports drift for the caller to act
// on.
type Reconciler struct {
	query exchange.Query
}

func NewReconciler(query exchange.Query) *Reconciler {
	return &Reconciler{query: query}
}

// Reconcile classifies every persisted position as Confirmed or Mismatch and
// every persisted OCO order as Active or Missing. Exchange query failures
// degrade the affected entry into the result's error list instead of aborting
// the pass.
func (r *Reconciler) Reconcile(ctx context.Context, s *BotState) *ReconciliationResult {
	result := &ReconciliationResult{CheckedAt: time.Now().UTC()}
	if s == nil {
		return result
	}

	for _, pos := range s.OpenPositions {
		asset := BaseAsset(pos.Symbol)
		balance, err := r.query.GetBalance(ctx, asset)
		if err != nil {
			msg := fmt.Sprintf("balance query for %s failed: %v", asset, err)
			logger.Warnf("reconcile: %s", msg)
			result.Errors = append(result.Errors, msg)
			continue
		}
		if math.Abs(balance-pos.RemainingQuantity) < quantityEpsilon {
			result.PositionsConfirmed = append(result.PositionsConfirmed, pos)
		} else {
			logger.Warnf("reconcile: %s quantity drift, persisted=%.8f live=%.8f",
				pos.Symbol, pos.RemainingQuantity, balance)
			result.PositionsMismatch = append(result.PositionsMismatch, PositionMismatch{
				Expected:       pos,
				ActualQuantity: balance,
			})
		}
	}

	openOrders := make(map[string]map[int64]bool)
	for _, oco := range s.ActiveOcoOrders {
		ids, ok := openOrders[oco.Symbol]
		if !ok {
			orders, err := r.query.GetOpenOrders(ctx, oco.Symbol)
			if err != nil {
				msg := fmt.Sprintf("open orders query for %s failed: %v", oco.Symbol, err)
				logger.Warnf("reconcile: %s", msg)
				result.Errors = append(result.Errors, msg)
				continue
			}
			ids = make(map[int64]bool, len(orders))
			for _, o := range orders {
				ids[o.OrderListID] = true
			}
			openOrders[oco.Symbol] = ids
		}
		if ids[oco.OrderListID] {
			result.OcoOrdersActive = append(result.OcoOrdersActive, oco)
		} else {
			// Presumed filled or externally canceled.
			logger.Warnf("reconcile: OCO %d for %s not among open orders", oco.OrderListID, oco.Symbol)
			result.OcoOrdersMissing = append(result.OcoOrdersMissing, oco)
		}
	}

	return result
}

// Summary renders an operator-facing report.
func (r *ReconciliationResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "reconciliation at %s\n", r.CheckedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "positions: %d confirmed, %d mismatched\n", len(r.PositionsConfirmed), len(r.PositionsMismatch))
	for _, mm := range r.PositionsMismatch {
		fmt.Fprintf(&b, "  %s expected %.8f, exchange reports %.8f\n",
			mm.Expected.Symbol, mm.Expected.RemainingQuantity, mm.ActualQuantity)
	}
	fmt.Fprintf(&b, "oco orders: %d active, %d missing\n", len(r.OcoOrdersActive), len(r.OcoOrdersMissing))
	for _, oco := range r.OcoOrdersMissing {
		fmt.Fprintf(&b, "  %s list id %d missing (filled or canceled externally)\n", oco.Symbol, oco.OrderListID)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  query error: %s\n", e)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BaseAsset derives the base asset from a trading symbol, e.g. BTCUSDT -> BTC.
// Unknown quote suffixes return the symbol unchanged.
func BaseAsset(symbol string) string {
	up := strings.ToUpper(strings.TrimSpace(symbol))
	for _, quote := range quoteAssets {
		if strings.HasSuffix(up, quote) && len(up) > len(quote) {
			return strings.TrimSuffix(up, quote)
		}
	}
	return up
}
