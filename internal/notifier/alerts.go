package notifier

import (
	"fmt"
	"time"

	"kestrel/internal/logger"
)

// Alerter formats operator alerts and pushes them through a TextNotifier.
// Delivery failures are logged, never propagated: alerting must not be able
// to interrupt risk handling.
type Alerter struct {
	sink TextNotifier
	name string
}

func NewAlerter(name string, sink TextNotifier) *Alerter {
	if sink == nil {
		sink = Nop{}
	}
	if name == "" {
		name = "kestrel"
	}
	return &Alerter{sink: sink, name: name}
}

func (a *Alerter) send(text string) {
	go func() {
		if err := a.sink.SendText(text); err != nil {
			logger.Warnf("notifier: alert delivery failed: %v", err)
		}
	}()
}

func (a *Alerter) DrawdownLimitBreached(kind string, drawdownPct, limitPct float64) {
	a.send(fmt.Sprintf("*%s* 🛑 %s drawdown %.2f%% breached the %.2f%% limit. New entries are blocked.",
		a.name, kind, drawdownPct, limitPct))
}

func (a *Alerter) CircuitBreakerChanged(breaker, from, to string) {
	a.send(fmt.Sprintf("*%s* ⚡ circuit breaker `%s`: %s -> %s", a.name, breaker, from, to))
}

func (a *Alerter) ConnectionCriticalFailure(reason string) {
	a.send(fmt.Sprintf("*%s* 🔌 connection failed permanently: %s. Manual intervention required.", a.name, reason))
}

func (a *Alerter) ConnectionRestored(downtime time.Duration) {
	a.send(fmt.Sprintf("*%s* ✅ connection restored after %s", a.name, downtime.Round(time.Second)))
}

func (a *Alerter) ReconciliationMismatch(summary string) {
	a.send(fmt.Sprintf("*%s* ⚠️ state reconciliation found mismatches, trading is blocked:\n%s", a.name, summary))
}

func (a *Alerter) SignalRejected(symbol, reason string) {
	a.send(fmt.Sprintf("*%s* 🚫 signal for %s rejected: %s", a.name, symbol, reason))
}
