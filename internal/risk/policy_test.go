package risk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_MultiplierFor(t *testing.T) {
	p := NewPolicy([]Tier{
		{DrawdownThresholdPercent: 10, RiskMultiplier: 0.25},
		{DrawdownThresholdPercent: 5, RiskMultiplier: 0.5},
	})

	assert.Equal(t, 1.0, p.MultiplierFor(0))
	assert.Equal(t, 1.0, p.MultiplierFor(4.99))
	assert.Equal(t, 0.5, p.MultiplierFor(5)) // inclusive boundary
	assert.Equal(t, 0.5, p.MultiplierFor(9.99))
	assert.Equal(t, 0.25, p.MultiplierFor(10))
	assert.Equal(t, 0.25, p.MultiplierFor(50))
}

func TestPolicy_EmptyIsNeutral(t *testing.T) {
	var p Policy
	assert.Equal(t, 1.0, p.MultiplierFor(99))
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid profile", func(t *testing.T) {
		path := filepath.Join(dir, "tiers.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
tiers:
  - drawdown_threshold_percent: 5
    risk_multiplier: 0.5
  - drawdown_threshold_percent: 10
    risk_multiplier: 0.25
`), 0o644))
		p, err := LoadPolicy(path)
		require.NoError(t, err)
		require.Len(t, p.Tiers(), 2)
		assert.Equal(t, 0.5, p.MultiplierFor(7))
	})

	t.Run("empty path yields neutral policy", func(t *testing.T) {
		p, err := LoadPolicy("")
		require.NoError(t, err)
		assert.Equal(t, 1.0, p.MultiplierFor(100))
	})

	t.Run("invalid multiplier rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
tiers:
  - drawdown_threshold_percent: 5
    risk_multiplier: 1.5
`), 0o644))
		_, err := LoadPolicy(path)
		assert.Error(t, err)
	})
}
