// Package equity tracks current, peak and day-start account equity and the
// drawdown ratios derived from them.
package equity

import "sync"

// Snapshot is an immutable view of the tracker. Deriving ratios from one
// snapshot keeps equity and drawdown mutually consistent even while the
// tracker is being updated concurrently.
type Snapshot struct {
	Current  float64 `json:"current_equity"`
	Peak     float64 `json:"peak_equity"`
	DayStart float64 `json:"day_start_equity"`
}

// DrawdownPercent returns the decline from peak equity in percent.
func (s Snapshot) DrawdownPercent() float64 {
	return drawdownPercent(s.Peak, s.Current)
}

// DailyDrawdownPercent returns the decline from day-start equity in percent.
func (s Snapshot) DailyDrawdownPercent() float64 {
	return drawdownPercent(s.DayStart, s.Current)
}

// Tracker keeps equity bookkeeping. Peak never drops below current.
type Tracker struct {
	mu       sync.RWMutex
	current  float64
	peak     float64
	dayStart float64
}

func NewTracker(initial float64) *Tracker {
	return &Tracker{
		current:  initial,
		peak:     initial,
		dayStart: initial,
	}
}

// Update sets current equity and raises the peak when exceeded.
func (t *Tracker) Update(newEquity float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = newEquity
	if newEquity > t.peak {
		t.peak = newEquity
	}
}

// Add applies a signed delta to current equity.
func (t *Tracker) Add(amount float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current += amount
	if t.current > t.peak {
		t.peak = t.current
	}
}

// ResetDailyTracking pins day-start equity to current equity. Called once per
// trading-day boundary.
func (t *Tracker) ResetDailyTracking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dayStart = t.current
}

// RestoreState re-seeds the tracker from a persisted snapshot without
// recomputation. Startup only.
func (t *Tracker) RestoreState(current, peak, dayStart float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = current
	t.peak = peak
	t.dayStart = dayStart
}

func (t *Tracker) Current() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *Tracker) Peak() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peak
}

func (t *Tracker) DayStart() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dayStart
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{Current: t.current, Peak: t.peak, DayStart: t.dayStart}
}

// DrawdownAbsolute returns peak minus current, never negative.
func (t *Tracker) DrawdownAbsolute() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if d := t.peak - t.current; d > 0 {
		return d
	}
	return 0
}

// DrawdownPercent returns the decline from peak equity in percent. Zero when
// peak is not positive.
func (t *Tracker) DrawdownPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return drawdownPercent(t.peak, t.current)
}

// DailyDrawdownPercent returns the decline from day-start equity in percent.
func (t *Tracker) DailyDrawdownPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return drawdownPercent(t.dayStart, t.current)
}

func (t *Tracker) IsDrawdownExceeded(thresholdPercent float64) bool {
	return t.DrawdownPercent() >= thresholdPercent
}

func (t *Tracker) IsDailyDrawdownExceeded(thresholdPercent float64) bool {
	return t.DailyDrawdownPercent() >= thresholdPercent
}

func drawdownPercent(reference, current float64) float64 {
	if reference <= 0 {
		return 0
	}
	dd := (reference - current) / reference * 100
	if dd < 0 {
		return 0
	}
	return dd
}
