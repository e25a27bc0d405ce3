// Package conn keeps one externally-defined subscription alive with bounded
// reconnection, exponential backoff with jitter and health reporting.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kestrel/internal/logger"
)

// ErrNotConnected is returned when a connect or reconnect sequence ends
// without an established subscription.
var ErrNotConnected = errors.New("conn: not connected")

// State of the managed subscription.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Handle is an active subscription as produced by the connect function.
// Lost delivers at most one error when the connection drops; Restored delivers
// downtime reports when the underlying transport recovers on its own.
type Handle interface {
	Lost() <-chan error
	Restored() <-chan time.Duration
	Close() error
}

// ConnectFunc dials the subscription. It must respect ctx cancellation.
type ConnectFunc func(ctx context.Context) (Handle, error)

// Observer receives connection lifecycle notifications. Listener lifetime is
// the manager's lifetime; callbacks run on the manager's goroutines and must
// not block.
type Observer interface {
	OnConnected(reconnected bool, downtime time.Duration)
	OnDisconnected(err error)
	OnCriticalFailure(reason string)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) OnConnected(bool, time.Duration) {}
func (NopObserver) OnDisconnected(error)            {}
func (NopObserver) OnCriticalFailure(string)        {}

// Config controls backoff and health reporting.
type Config struct {
	Name string
	// Delays is the explicit backoff table. Empty means generate one from
	// MinDelay/MaxDelay/Factor.
	Delays         []time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration
	Factor         float64
	JitterFactor   float64
	HealthInterval time.Duration
}

// Stats is an observability snapshot, recomputed on demand.
type Stats struct {
	IsConnected           bool      `json:"is_connected"`
	State                 string    `json:"state"`
	CurrentAttempt        int       `json:"current_attempt"`
	MaxAttempts           int       `json:"max_attempts"`
	HasActiveSubscription bool      `json:"has_active_subscription"`
	LastConnectedAt       time.Time `json:"last_connected_at"`
	LastDisconnectedAt    time.Time `json:"last_disconnected_at"`
	LastError             string    `json:"last_error,omitempty"`
	LastErrorAt           time.Time `json:"last_error_at"`
}

// Manager runs the Disconnected -> Connecting -> Connected state machine with
// automatic Reconnecting on loss and terminal Failed on backoff exhaustion.
type Manager struct {
	cfg     Config
	connect ConnectFunc
	obs     Observer
	delays  []time.Duration

	mu                 sync.Mutex
	state              State
	attempt            int
	handle             Handle
	watchCancel        context.CancelFunc
	seqCancel          context.CancelFunc
	lastConnectedAt    time.Time
	lastDisconnectedAt time.Time
	lastErr            error
	lastErrAt          time.Time
}

func NewManager(cfg Config, connect ConnectFunc, obs Observer) *Manager {
	if obs == nil {
		obs = NopObserver{}
	}
	delays := cfg.Delays
	if len(delays) == 0 {
		delays = BuildDelayTable(cfg.MinDelay, cfg.MaxDelay, cfg.Factor)
	}
	return &Manager{
		cfg:     cfg,
		connect: connect,
		obs:     obs,
		delays:  delays,
		state:   StateDisconnected,
	}
}

// Start establishes the subscription, retrying with backoff. On success it
// installs a watcher so a later connection loss automatically starts a new
// reconnect sequence bound to ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting || m.state == StateReconnecting {
		m.mu.Unlock()
		return fmt.Errorf("conn: %s already started", m.cfg.Name)
	}
	m.state = StateConnecting
	seqCtx, cancel := context.WithCancel(ctx)
	m.seqCancel = cancel
	m.mu.Unlock()

	return m.connectWithRetry(seqCtx, false)
}

// connectWithRetry performs the initial attempt plus one retry per backoff
// table entry. Cancellation at any wait point returns ErrNotConnected without
// declaring failure; exhausting the table is fatal.
func (m *Manager) connectWithRetry(ctx context.Context, isReconnect bool) error {
	for i := 0; i <= len(m.delays); i++ {
		m.mu.Lock()
		m.attempt = i
		m.mu.Unlock()

		if err := ctx.Err(); err != nil {
			m.toDisconnected()
			return ErrNotConnected
		}

		handle, err := m.connect(ctx)
		if err == nil {
			m.onEstablished(ctx, handle, isReconnect)
			return nil
		}
		m.recordError(err)
		if i == len(m.delays) {
			break
		}

		wait := Jitter(m.delays[i], m.cfg.JitterFactor)
		logger.Warnf("conn: %s attempt %d/%d failed: %v, retrying in %s",
			m.cfg.Name, i+1, len(m.delays)+1, err, wait.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			m.toDisconnected()
			return ErrNotConnected
		case <-time.After(wait):
		}
	}

	m.mu.Lock()
	m.state = StateFailed
	m.mu.Unlock()
	reason := fmt.Sprintf("%s: reconnect budget exhausted after %d attempts", m.cfg.Name, len(m.delays)+1)
	logger.Errorf("conn: %s", reason)
	m.obs.OnCriticalFailure(reason)
	return fmt.Errorf("%w: %s", ErrNotConnected, reason)
}

func (m *Manager) onEstablished(ctx context.Context, handle Handle, isReconnect bool) {
	m.mu.Lock()
	if m.state == StateDisconnected {
		// Stop() won the race against an in-flight attempt; do not resurrect
		// the subscription.
		m.mu.Unlock()
		_ = handle.Close()
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	var downtime time.Duration
	if isReconnect && !m.lastDisconnectedAt.IsZero() {
		downtime = time.Since(m.lastDisconnectedAt)
	}
	m.handle = handle
	m.state = StateConnected
	m.attempt = 0
	m.lastConnectedAt = time.Now()
	if m.watchCancel != nil {
		m.watchCancel()
	}
	m.watchCancel = cancel
	m.mu.Unlock()

	if isReconnect {
		logger.Infof("conn: %s restored after %s", m.cfg.Name, downtime.Round(time.Millisecond))
	} else {
		logger.Infof("conn: %s connected", m.cfg.Name)
	}
	m.obs.OnConnected(isReconnect, downtime)

	go m.watch(watchCtx, ctx, handle)
}

// watch waits for loss or transport-level restoration on the current handle.
// Only one watcher is live per established connection, so at most one
// reconnect sequence can be in flight.
func (m *Manager) watch(watchCtx, parent context.Context, handle Handle) {
	for {
		select {
		case <-watchCtx.Done():
			return
		case downtime := <-handle.Restored():
			logger.Infof("conn: %s transport restored after %s", m.cfg.Name, downtime.Round(time.Millisecond))
			m.obs.OnConnected(true, downtime)
		case err := <-handle.Lost():
			m.mu.Lock()
			if m.state != StateConnected {
				m.mu.Unlock()
				return
			}
			m.state = StateReconnecting
			m.lastDisconnectedAt = time.Now()
			m.handle = nil
			seqCtx, cancel := context.WithCancel(parent)
			m.seqCancel = cancel
			m.mu.Unlock()

			logger.Warnf("conn: %s lost: %v", m.cfg.Name, err)
			m.recordError(err)
			m.obs.OnDisconnected(err)
			_ = handle.Close()
			_ = m.connectWithRetry(seqCtx, true)
			return
		}
	}
}

// Stop closes the subscription and halts any reconnect sequence. Stopping is
// not an error condition.
func (m *Manager) Stop() {
	m.mu.Lock()
	handle := m.handle
	m.handle = nil
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
	if m.seqCancel != nil {
		m.seqCancel()
		m.seqCancel = nil
	}
	m.state = StateDisconnected
	m.lastDisconnectedAt = time.Now()
	m.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}
	logger.Infof("conn: %s stopped", m.cfg.Name)
}

// RunHealthLoop reports connectivity state on its own interval. It never
// triggers reconnection itself and exits cleanly on ctx cancellation.
func (m *Manager) RunHealthLoop(ctx context.Context) {
	interval := m.cfg.HealthInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Stats()
			if s.IsConnected {
				logger.Debugf("conn: %s healthy, connected since %s", m.cfg.Name, s.LastConnectedAt.Format(time.RFC3339))
			} else {
				logger.Warnf("conn: %s unhealthy, state=%s attempt=%d/%d lastError=%q",
					m.cfg.Name, s.State, s.CurrentAttempt, s.MaxAttempts, s.LastError)
			}
		}
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		IsConnected:           m.state == StateConnected,
		State:                 m.state.String(),
		CurrentAttempt:        m.attempt,
		MaxAttempts:           len(m.delays) + 1,
		HasActiveSubscription: m.handle != nil,
		LastConnectedAt:       m.lastConnectedAt,
		LastDisconnectedAt:    m.lastDisconnectedAt,
		LastErrorAt:           m.lastErrAt,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

func (m *Manager) toDisconnected() {
	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.lastErrAt = time.Now()
	m.mu.Unlock()
}
