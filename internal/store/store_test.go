package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveTrade_UpsertBySignalID(t *testing.T) {
	s := newTestStore(t)

	warnings, _ := json.Marshal([]string{"leverage capped from 20x to 10x"})
	rec := &TradeRecord{
		SignalID:     "sig-1",
		Symbol:       "BTCUSDT",
		Direction:    "long",
		EntryPrice:   64000,
		StopLoss:     62000,
		Quantity:     0.05,
		Leverage:     10,
		RiskAmount:   100,
		Status:       TradeStatusOpen,
		WarningsJSON: datatypes.JSON(warnings),
	}
	require.NoError(t, s.SaveTrade(rec))

	rec.Status = TradeStatusPartial
	rec.Quantity = 0.025
	require.NoError(t, s.SaveTrade(rec))

	trades, err := s.RecentTrades(10)
	require.NoError(t, err)
	require.Len(t, trades, 1, "replayed signal must update in place")
	assert.Equal(t, TradeStatusPartial, trades[0].Status)
	assert.Equal(t, 0.025, trades[0].Quantity)
}

func TestSaveTrade_RequiresSignalID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SaveTrade(&TradeRecord{Symbol: "BTCUSDT"}))
	assert.Error(t, s.SaveTrade(nil))
}

func TestUpdateTradeStatus(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveTrade(&TradeRecord{SignalID: "sig-2", Symbol: "ETHUSDT", Status: TradeStatusOpen}))

	require.NoError(t, s.UpdateTradeStatus("sig-2", TradeStatusClosed))
	trades, err := s.RecentTrades(1)
	require.NoError(t, err)
	assert.Equal(t, TradeStatusClosed, trades[0].Status)

	assert.Error(t, s.UpdateTradeStatus("missing", TradeStatusClosed))
}

func TestEquityHistory(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordEquity(EquityPoint{
			Equity:         10000 + float64(i)*100,
			Peak:           10200,
			DayStart:       10000,
			RecordedAtUnix: base.Add(time.Duration(i) * time.Minute).Unix(),
		}))
	}

	points, err := s.EquityHistory(base.Add(30*time.Second), 100)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 10100.0, points[0].Equity, "ascending order")
}

func TestReconciliationAudit(t *testing.T) {
	s := newTestStore(t)

	last, err := s.LastReconciliation()
	require.NoError(t, err)
	assert.Nil(t, last, "empty journal has no audit rows")

	mismatches := []map[string]string{{"symbol": "BTCUSDT", "reason": "quantity mismatch"}}
	require.NoError(t, s.RecordReconciliation(false, mismatches, []string{"price query failed"}, time.Now()))
	require.NoError(t, s.RecordReconciliation(true, nil, nil, time.Now().Add(time.Second)))

	last, err = s.LastReconciliation()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.FullyReconciled)
}
