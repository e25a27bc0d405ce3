package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDelayTable(t *testing.T) {
	t.Run("reference table", func(t *testing.T) {
		got := BuildDelayTable(500*time.Millisecond, 10*time.Second, 2)
		want := []time.Duration{
			500 * time.Millisecond,
			1000 * time.Millisecond,
			2000 * time.Millisecond,
			4000 * time.Millisecond,
			8000 * time.Millisecond,
			10000 * time.Millisecond,
		}
		assert.Equal(t, want, got)
	})

	t.Run("last element always equals max", func(t *testing.T) {
		for _, factor := range []float64{0.5, 1, 1.3, 2, 10} {
			got := BuildDelayTable(100*time.Millisecond, 2*time.Second, factor)
			assert.Equal(t, 2*time.Second, got[len(got)-1], "factor=%v", factor)
		}
	})

	t.Run("non-increasing factor forced up by 1ms", func(t *testing.T) {
		got := BuildDelayTable(1*time.Millisecond, 4*time.Millisecond, 1)
		want := []time.Duration{
			1 * time.Millisecond,
			2 * time.Millisecond,
			3 * time.Millisecond,
			4 * time.Millisecond,
		}
		assert.Equal(t, want, got)
	})

	t.Run("min above max collapses to max only", func(t *testing.T) {
		got := BuildDelayTable(5*time.Second, time.Second, 2)
		assert.Equal(t, []time.Duration{time.Second}, got)
	})
}

func TestJitter_Bounds(t *testing.T) {
	base := 800 * time.Millisecond
	for _, f := range []float64{0, 0.25, 0.5, 1} {
		for i := 0; i < 200; i++ {
			got := Jitter(base, f)
			lo := time.Duration(float64(base) * (1 - f))
			hi := time.Duration(float64(base) * (1 + f))
			assert.GreaterOrEqual(t, got, lo, "f=%v", f)
			assert.LessOrEqual(t, got, hi, "f=%v", f)
		}
	}
}

func TestJitter_ClampsFactor(t *testing.T) {
	base := time.Second
	assert.Equal(t, base, Jitter(base, -3))
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, Jitter(base, 5), time.Duration(0))
	}
}
