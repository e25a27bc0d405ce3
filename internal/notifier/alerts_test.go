package notifier

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
	sent  chan struct{}
}

func newCaptureNotifier(err error) *captureNotifier {
	return &captureNotifier{err: err, sent: make(chan struct{}, 16)}
}

func (c *captureNotifier) SendText(text string) error {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	c.sent <- struct{}{}
	return c.err
}

func (c *captureNotifier) wait(t *testing.T) string {
	t.Helper()
	select {
	case <-c.sent:
	case <-time.After(time.Second):
		t.Fatal("no alert delivered")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.texts[len(c.texts)-1]
}

func TestAlerter_FormatsEvents(t *testing.T) {
	sink := newCaptureNotifier(nil)
	a := NewAlerter("kestrel-test", sink)

	a.DrawdownLimitBreached("total", 16.5, 15)
	msg := sink.wait(t)
	assert.Contains(t, msg, "kestrel-test")
	assert.Contains(t, msg, "16.50%")
	assert.Contains(t, msg, "blocked")

	a.CircuitBreakerChanged("binance-rest", "CLOSED", "OPEN")
	assert.Contains(t, sink.wait(t), "CLOSED -> OPEN")

	a.ConnectionCriticalFailure("reconnect budget exhausted")
	assert.Contains(t, sink.wait(t), "Manual intervention")

	a.ReconciliationMismatch("BTCUSDT: quantity mismatch")
	assert.Contains(t, sink.wait(t), "BTCUSDT")
}

func TestAlerter_DeliveryFailureDoesNotPanic(t *testing.T) {
	sink := newCaptureNotifier(errors.New("telegram down"))
	a := NewAlerter("", sink)

	require.NotPanics(t, func() {
		a.SignalRejected("BTCUSDT", "equity unavailable")
		sink.wait(t)
	})
}

func TestAlerter_NilSinkIsSafe(t *testing.T) {
	a := NewAlerter("kestrel", nil)
	assert.NotPanics(t, func() { a.ConnectionRestored(3 * time.Second) })
}
