package signal

import (
	"fmt"
	"math"

	"kestrel/internal/logger"
)

// liquidationBuffer shrinks the raw isolated-margin liquidation distance by
// 2%. This is a safety estimate, not the exchange's exact formula.
const liquidationBuffer = 0.98

// Config controls leverage overrides and stop-loss recomputation.
type Config struct {
	// OverridesEnabled turns on the leverage policy below. When false the
	// signal's own leverage is used as-is.
	OverridesEnabled bool
	// ForceMaxLeverage applies MaxLeverage outright instead of capping.
	// Only meaningful while OverridesEnabled is true.
	ForceMaxLeverage bool
	MaxLeverage      int
	// AlwaysRecomputeStop replaces every signal stop-loss with the safe stop.
	AlwaysRecomputeStop bool
	// SafeStopFraction places the recomputed stop at this fraction of the
	// distance between entry and the liquidation estimate.
	SafeStopFraction float64
	// WarnRiskRewardBelow emits a warning (not a rejection) for ratios under
	// this value.
	WarnRiskRewardBelow float64
}

func (c Config) withDefaults() Config {
	if c.MaxLeverage <= 0 {
		c.MaxLeverage = 10
	}
	if c.SafeStopFraction <= 0 || c.SafeStopFraction >= 1 {
		c.SafeStopFraction = 0.7
	}
	if c.WarnRiskRewardBelow <= 0 {
		c.WarnRiskRewardBelow = 1.0
	}
	return c
}

// Validator runs the single-pass Received -> {Valid, Rejected} check.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg.withDefaults()}
}

// Validate checks and adjusts a signal against the account's current equity.
// It never panics: any internal failure is converted into a rejection.
func (v *Validator) Validate(sig TradingSignal, accountEquity float64) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("signal: validation panicked for %s: %v", sig.Symbol, r)
			result = reject(sig, fmt.Sprintf("internal validation error: %v", r))
		}
	}()

	if reason := structuralReason(sig, accountEquity); reason != "" {
		return reject(sig, reason)
	}

	out := sig
	out.Warnings = nil

	out.AdjustedLeverage = v.resolveLeverage(sig.OriginalLeverage, &out)
	out.LiquidationPrice = liquidationEstimate(out.Entry, out.Direction, out.AdjustedLeverage)
	out.AdjustedStopLoss = v.resolveStopLoss(&out)
	out.RiskRewardRatio = v.riskReward(&out)
	out.IsValid = true

	return Result{Signal: out, Valid: true}
}

func structuralReason(sig TradingSignal, accountEquity float64) string {
	switch {
	case sig.Symbol == "":
		return "symbol is required"
	case sig.Direction != DirectionLong && sig.Direction != DirectionShort:
		return fmt.Sprintf("direction must be %q or %q, got %q", DirectionLong, DirectionShort, sig.Direction)
	case sig.Entry <= 0:
		return fmt.Sprintf("entry price must be positive, got %.8f", sig.Entry)
	case sig.OriginalStopLoss < 0:
		return fmt.Sprintf("stop loss cannot be negative, got %.8f", sig.OriginalStopLoss)
	case accountEquity <= 0:
		return "account equity unavailable, refusing to validate"
	}
	for _, tgt := range sig.Targets {
		if tgt <= 0 {
			return fmt.Sprintf("target must be positive, got %.8f", tgt)
		}
	}
	return ""
}

// resolveLeverage applies the override policy. Overrides disabled: the
// signal's leverage stands (floored to 1x). Overrides enabled: MaxLeverage
// caps the signal, or replaces it outright when ForceMaxLeverage is set.
func (v *Validator) resolveLeverage(requested int, out *TradingSignal) int {
	if requested < 1 {
		out.Warnings = append(out.Warnings, "signal carried no leverage, defaulting to 1x")
		requested = 1
	}
	if !v.cfg.OverridesEnabled {
		return requested
	}
	if v.cfg.ForceMaxLeverage {
		if requested != v.cfg.MaxLeverage {
			out.Warnings = append(out.Warnings, fmt.Sprintf("leverage forced from %dx to %dx", requested, v.cfg.MaxLeverage))
		}
		return v.cfg.MaxLeverage
	}
	if requested > v.cfg.MaxLeverage {
		out.Warnings = append(out.Warnings, fmt.Sprintf("leverage capped from %dx to %dx", requested, v.cfg.MaxLeverage))
		return v.cfg.MaxLeverage
	}
	return requested
}

// liquidationEstimate approximates the isolated-margin liquidation price with
// the safety buffer applied. Long liquidations sit below entry, short above.
func liquidationEstimate(entry float64, direction string, leverage int) float64 {
	distance := entry / float64(leverage) * liquidationBuffer
	if direction == DirectionShort {
		return entry + distance
	}
	return entry - distance
}

// resolveStopLoss accepts the signal's stop only when it lies strictly
// between entry and the liquidation estimate, so the stop always triggers
// before liquidation can. Anything else is replaced by the safe stop.
func (v *Validator) resolveStopLoss(out *TradingSignal) float64 {
	safe := v.safeStop(out.Entry, out.LiquidationPrice)
	if v.cfg.AlwaysRecomputeStop {
		return safe
	}

	sl := out.OriginalStopLoss
	var ok bool
	if out.Direction == DirectionLong {
		ok = sl > out.LiquidationPrice && sl < out.Entry
	} else {
		ok = sl < out.LiquidationPrice && sl > out.Entry
	}
	if ok {
		return sl
	}
	out.Warnings = append(out.Warnings, fmt.Sprintf(
		"stop loss %.8f is not strictly between entry %.8f and liquidation %.8f, recomputed to %.8f",
		sl, out.Entry, out.LiquidationPrice, safe))
	return safe
}

// safeStop sits at SafeStopFraction of the entry->liquidation distance.
func (v *Validator) safeStop(entry, liquidation float64) float64 {
	return entry + v.cfg.SafeStopFraction*(liquidation-entry)
}

func (v *Validator) riskReward(out *TradingSignal) float64 {
	if len(out.Targets) == 0 {
		out.Warnings = append(out.Warnings, "signal has no targets, risk:reward unknown")
		return 0
	}
	risk := math.Abs(out.Entry - out.AdjustedStopLoss)
	if risk == 0 {
		return 0
	}
	ratio := math.Abs(out.Targets[0]-out.Entry) / risk
	if ratio < v.cfg.WarnRiskRewardBelow {
		out.Warnings = append(out.Warnings, fmt.Sprintf("risk:reward %.2f is below %.2f", ratio, v.cfg.WarnRiskRewardBelow))
	}
	return ratio
}
