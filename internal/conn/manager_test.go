package conn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	lost     chan error
	restored chan time.Duration

	mu     sync.Mutex
	closed bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		lost:     make(chan error, 1),
		restored: make(chan time.Duration, 1),
	}
}

func (h *fakeHandle) Lost() <-chan error             { return h.lost }
func (h *fakeHandle) Restored() <-chan time.Duration { return h.restored }
func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

type recordingObserver struct {
	mu        sync.Mutex
	connected []bool // reconnected flag per OnConnected call
	lost      []error
	critical  []string
	connectCh chan struct{}
	failCh    chan struct{}
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		connectCh: make(chan struct{}, 8),
		failCh:    make(chan struct{}, 1),
	}
}

func (o *recordingObserver) OnConnected(reconnected bool, _ time.Duration) {
	o.mu.Lock()
	o.connected = append(o.connected, reconnected)
	o.mu.Unlock()
	o.connectCh <- struct{}{}
}

func (o *recordingObserver) OnDisconnected(err error) {
	o.mu.Lock()
	o.lost = append(o.lost, err)
	o.mu.Unlock()
}

func (o *recordingObserver) OnCriticalFailure(reason string) {
	o.mu.Lock()
	o.critical = append(o.critical, reason)
	o.mu.Unlock()
	o.failCh <- struct{}{}
}

func fastConfig() Config {
	return Config{
		Name:         "test-stream",
		Delays:       []time.Duration{time.Millisecond, time.Millisecond},
		JitterFactor: 0,
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestManager_ConnectFirstAttempt(t *testing.T) {
	obs := newRecordingObserver()
	handle := newFakeHandle()
	m := NewManager(fastConfig(), func(context.Context) (Handle, error) {
		return handle, nil
	}, obs)

	require.NoError(t, m.Start(context.Background()))
	waitSignal(t, obs.connectCh, "connect")

	assert.Equal(t, StateConnected, m.State())
	stats := m.Stats()
	assert.True(t, stats.IsConnected)
	assert.True(t, stats.HasActiveSubscription)
	assert.Zero(t, stats.CurrentAttempt)
	assert.Equal(t, 3, stats.MaxAttempts)

	m.Stop()
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManager_ReconnectsAfterLoss(t *testing.T) {
	obs := newRecordingObserver()
	var mu sync.Mutex
	handles := []*fakeHandle{newFakeHandle(), newFakeHandle()}
	calls := 0
	m := NewManager(fastConfig(), func(context.Context) (Handle, error) {
		mu.Lock()
		defer mu.Unlock()
		h := handles[calls]
		calls++
		return h, nil
	}, obs)

	require.NoError(t, m.Start(context.Background()))
	waitSignal(t, obs.connectCh, "initial connect")

	handles[0].lost <- errors.New("stream reset")
	waitSignal(t, obs.connectCh, "reconnect")

	assert.Equal(t, StateConnected, m.State())
	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.connected, 2)
	assert.False(t, obs.connected[0], "first connect is fresh")
	assert.True(t, obs.connected[1], "second connect is a restoration")
	require.Len(t, obs.lost, 1)
	assert.EqualError(t, obs.lost[0], "stream reset")

	m.Stop()
}

func TestManager_StopHaltsInFlightReconnect(t *testing.T) {
	obs := newRecordingObserver()
	first := newFakeHandle()
	gate := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	m := NewManager(fastConfig(), func(context.Context) (Handle, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return first, nil
		}
		<-gate
		return newFakeHandle(), nil
	}, obs)

	require.NoError(t, m.Start(context.Background()))
	waitSignal(t, obs.connectCh, "initial connect")

	first.lost <- errors.New("stream reset")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, 2*time.Second, time.Millisecond, "reconnect attempt should be in flight")

	// Stop while the retry attempt is held open, then let it complete.
	m.Stop()
	close(gate)

	assert.Never(t, func() bool { return m.State() == StateConnected },
		100*time.Millisecond, 10*time.Millisecond, "stopped manager must not reconnect")
	assert.Equal(t, StateDisconnected, m.State())
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Len(t, obs.connected, 1, "only the initial connect is reported")
}

func TestManager_TransportRestoredForwarded(t *testing.T) {
	obs := newRecordingObserver()
	handle := newFakeHandle()
	m := NewManager(fastConfig(), func(context.Context) (Handle, error) {
		return handle, nil
	}, obs)

	require.NoError(t, m.Start(context.Background()))
	waitSignal(t, obs.connectCh, "connect")

	handle.restored <- 750 * time.Millisecond
	waitSignal(t, obs.connectCh, "restored report")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.connected, 2)
	assert.True(t, obs.connected[1])
	// No reconnect sequence ran; the attempt counter is untouched.
	assert.Equal(t, StateConnected, m.State())

	m.Stop()
}

func TestManager_FailedAfterExhaustion(t *testing.T) {
	obs := newRecordingObserver()
	dialErr := errors.New("refused")
	m := NewManager(fastConfig(), func(context.Context) (Handle, error) {
		return nil, dialErr
	}, obs)

	err := m.Start(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
	waitSignal(t, obs.failCh, "critical failure")

	assert.Equal(t, StateFailed, m.State())
	stats := m.Stats()
	assert.False(t, stats.IsConnected)
	assert.Equal(t, "refused", stats.LastError)
}

func TestManager_CancelDuringBackoffIsNotFailure(t *testing.T) {
	obs := newRecordingObserver()
	cfg := Config{Name: "test-stream", Delays: []time.Duration{time.Minute}}
	m := NewManager(cfg, func(context.Context) (Handle, error) {
		return nil, errors.New("refused")
	}, obs)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := m.Start(ctx)
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, StateDisconnected, m.State(), "cancellation must not declare terminal failure")
	obs.mu.Lock()
	assert.Empty(t, obs.critical)
	obs.mu.Unlock()
}

func TestManager_GeneratedTableBoundsAttempts(t *testing.T) {
	m := NewManager(Config{
		Name:     "gen",
		MinDelay: 500 * time.Millisecond,
		MaxDelay: 10 * time.Second,
		Factor:   2,
	}, func(context.Context) (Handle, error) { return nil, errors.New("x") }, nil)

	assert.Equal(t, 7, m.Stats().MaxAttempts) // 6 table entries + initial attempt
}
