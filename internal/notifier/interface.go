// Package notifier pushes operator alerts for risk events: circuit breakers,
// drawdown limits, connection failures and reconciliation mismatches.
package notifier

// TextNotifier defines a minimal text notification interface.
// It is intentionally small so different components can depend on it without
// importing concrete implementations (e.g. Telegram).
type TextNotifier interface {
	SendText(text string) error
}

// Nop discards every notification. Used when alerting is not configured.
type Nop struct{}

func (Nop) SendText(string) error { return nil }
