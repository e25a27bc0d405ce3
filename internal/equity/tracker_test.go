package equity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_PeakMonotonic(t *testing.T) {
	tr := NewTracker(10000)

	updates := []float64{11000, 9000, 12000, 8000, 11999, 12000.5}
	for _, u := range updates {
		tr.Update(u)
		assert.GreaterOrEqual(t, tr.Peak(), tr.Current(), "peak must never fall below current after Update(%v)", u)
	}
	assert.Equal(t, 12000.5, tr.Peak())
}

func TestTracker_DrawdownPercent(t *testing.T) {
	t.Run("zero at peak", func(t *testing.T) {
		tr := NewTracker(5000)
		assert.Zero(t, tr.DrawdownPercent())
		tr.Update(6000)
		assert.Zero(t, tr.DrawdownPercent())
	})

	t.Run("scenario: 10000 -> 11000 -> 10100", func(t *testing.T) {
		tr := NewTracker(10000)
		tr.Update(11000)
		tr.Update(10100)
		assert.Equal(t, 900.0, tr.DrawdownAbsolute())
		assert.InDelta(t, 8.1818, tr.DrawdownPercent(), 0.001)
	})

	t.Run("zero reference", func(t *testing.T) {
		tr := NewTracker(0)
		tr.Update(-100)
		assert.Zero(t, tr.DrawdownPercent())
		assert.Zero(t, tr.DailyDrawdownPercent())
	})
}

func TestTracker_DailyDrawdown(t *testing.T) {
	tr := NewTracker(10000)
	tr.Update(12000)
	tr.ResetDailyTracking()
	tr.Update(11400)

	assert.InDelta(t, 5.0, tr.DailyDrawdownPercent(), 1e-9)
	assert.True(t, tr.IsDailyDrawdownExceeded(5.0))
	assert.False(t, tr.IsDailyDrawdownExceeded(5.01))
	// Total drawdown measures from the all-time peak, not the day start.
	assert.InDelta(t, 5.0, tr.DrawdownPercent(), 1e-9)
}

func TestTracker_AddAndRestore(t *testing.T) {
	tr := NewTracker(1000)
	tr.Add(500)
	require.Equal(t, 1500.0, tr.Current())
	require.Equal(t, 1500.0, tr.Peak())

	tr.Add(-300)
	assert.Equal(t, 1200.0, tr.Current())
	assert.Equal(t, 1500.0, tr.Peak())

	tr.RestoreState(900, 2000, 950)
	snap := tr.Snapshot()
	assert.Equal(t, Snapshot{Current: 900, Peak: 2000, DayStart: 950}, snap)
	assert.InDelta(t, 55.0, tr.DrawdownPercent(), 1e-9)
}

func TestSnapshot_RatiosSelfConsistent(t *testing.T) {
	tr := NewTracker(10000)
	tr.Update(11000)
	tr.ResetDailyTracking()
	tr.Update(9900)

	snap := tr.Snapshot()
	assert.InDelta(t, tr.DrawdownPercent(), snap.DrawdownPercent(), 1e-12)
	assert.InDelta(t, tr.DailyDrawdownPercent(), snap.DailyDrawdownPercent(), 1e-12)

	// Later tracker mutations never bleed into an already taken snapshot.
	tr.Update(5000)
	assert.InDelta(t, 10.0, snap.DrawdownPercent(), 1e-9)
	assert.Equal(t, 9900.0, snap.Current)
}
