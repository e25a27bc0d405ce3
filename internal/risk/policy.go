package risk

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Tier scales risk-per-trade down once drawdown crosses its threshold.
type Tier struct {
	DrawdownThresholdPercent float64 `yaml:"drawdown_threshold_percent" json:"drawdown_threshold_percent"`
	RiskMultiplier           float64 `yaml:"risk_multiplier" json:"risk_multiplier"`
}

// Policy is an ordered set of drawdown tiers. Immutable after load.
type Policy struct {
	tiers []Tier
}

func NewPolicy(tiers []Tier) Policy {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DrawdownThresholdPercent < sorted[j].DrawdownThresholdPercent
	})
	return Policy{tiers: sorted}
}

// LoadPolicy reads a tier profile from a YAML file. An empty path yields an
// empty policy (multiplier 1.0 everywhere).
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return Policy{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading risk policy failed: %w", err)
	}
	var doc struct {
		Tiers []Tier `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Policy{}, fmt.Errorf("parsing risk policy failed: %w", err)
	}
	for _, tier := range doc.Tiers {
		if tier.DrawdownThresholdPercent < 0 {
			return Policy{}, fmt.Errorf("risk policy tier threshold must be >= 0, got %.2f", tier.DrawdownThresholdPercent)
		}
		if tier.RiskMultiplier <= 0 || tier.RiskMultiplier > 1 {
			return Policy{}, fmt.Errorf("risk policy tier multiplier must be in (0,1], got %.2f", tier.RiskMultiplier)
		}
	}
	return NewPolicy(doc.Tiers), nil
}

func (p Policy) Tiers() []Tier {
	out := make([]Tier, len(p.tiers))
	copy(out, p.tiers)
	return out
}

// MultiplierFor returns the risk multiplier for the given total drawdown
// percentage. The applied tier is the one with the highest threshold <=
// drawdown (inclusive boundary); no matching tier means 1.0.
func (p Policy) MultiplierFor(drawdownPercent float64) float64 {
	mult := 1.0
	for _, tier := range p.tiers {
		if drawdownPercent >= tier.DrawdownThresholdPercent {
			mult = tier.RiskMultiplier
		}
	}
	return mult
}
