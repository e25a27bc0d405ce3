package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewBreaker("test", 3, time.Hour)
	cb.SetStateChangeHandler(func(string, State, State) {})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		assert.True(t, cb.Allow(), "below threshold must stay closed")
	}
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewBreaker("test", 3, time.Hour)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Zero(t, cb.Failures())
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewBreaker("test", 1, 10*time.Millisecond)
	cb.SetStateChangeHandler(func(string, State, State) {})
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.Allow(), "timeout elapsed, probe allowed")
	assert.Equal(t, StateHalfOpen, cb.State())

	t.Run("probe failure reopens", func(t *testing.T) {
		cb.RecordFailure()
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("probe success closes", func(t *testing.T) {
		time.Sleep(20 * time.Millisecond)
		require.True(t, cb.Allow())
		cb.RecordSuccess()
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestBreaker_Execute(t *testing.T) {
	cb := NewBreaker("test", 1, time.Hour)
	cb.SetStateChangeHandler(func(string, State, State) {})

	boom := errors.New("boom")
	err := cb.Execute(func() error { return boom })
	assert.ErrorIs(t, err, boom)

	err = cb.Execute(func() error {
		t.Fatal("must not be called while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
}
