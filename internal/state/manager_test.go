package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "bot_state.json"))
	require.NoError(t, err)
	return m
}

func sampleState() *BotState {
	return &BotState{
		CurrentEquity:     10100,
		PeakEquity:        11000,
		DayStartEquity:    10000,
		CurrentTradingDay: "2026-08-31",
		Symbol:            "BTCUSDT",
		NextTradeID:       7,
		OpenPositions: []SavedPosition{
			{Symbol: "BTCUSDT", Direction: "long", Quantity: 0.5, RemainingQuantity: 0.25, RiskAmount: 100, EntryPrice: 60000, StopLoss: 59000},
		},
		ActiveOcoOrders: []SavedOcoOrder{
			{Symbol: "BTCUSDT", OrderListID: 42, StopLossPrice: 59000, TakeProfitPrice: 63000, Quantity: 0.25},
		},
	}
}

func TestManager_SaveAndLoadRoundtrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.NoError(t, m.SaveState(ctx, sampleState()))

	loaded, err := m.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10100.0, loaded.CurrentEquity)
	assert.Equal(t, CurrentVersion, loaded.Version)
	assert.False(t, loaded.LastUpdate.IsZero())
	require.Len(t, loaded.OpenPositions, 1)
	assert.Equal(t, 0.25, loaded.OpenPositions[0].RemainingQuantity)
}

func TestManager_LoadMissingIsNoState(t *testing.T) {
	m := newTestManager(t)
	_, err := m.LoadState(context.Background())
	assert.ErrorIs(t, err, ErrNoState)
}

func TestManager_SaveCreatesBackupOfPriorPrimary(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	first := sampleState()
	first.NextTradeID = 1
	require.NoError(t, m.SaveState(ctx, first))

	second := sampleState()
	second.NextTradeID = 2
	require.NoError(t, m.SaveState(ctx, second))

	backup, err := m.LoadBackup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, backup.NextTradeID, "backup must hold the pre-write snapshot")

	loaded, err := m.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.NextTradeID)
}

func TestManager_CorruptPrimaryFallsBackToBackup(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.NoError(t, m.SaveState(ctx, sampleState()))
	require.NoError(t, m.SaveState(ctx, sampleState()))

	require.NoError(t, os.WriteFile(m.Path(), []byte("{not json"), 0o644))

	loaded, err := m.LoadState(ctx)
	require.NoError(t, err, "corrupt primary must degrade to the backup copy")
	assert.Equal(t, "BTCUSDT", loaded.Symbol)
}

func TestManager_CrashBeforeRenameLeavesPrimaryIntact(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.NoError(t, m.SaveState(ctx, sampleState()))

	// Simulate a crash mid-save: the temp file was written but never renamed.
	require.NoError(t, os.WriteFile(m.Path()+".tmp", []byte("half-writ"), 0o644))

	loaded, err := m.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10100.0, loaded.CurrentEquity, "prior primary must remain fully readable")
}

func TestManager_UnknownFieldsTolerated(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	doc := []byte(`{"current_equity": 5000, "version": 99, "future_field": {"x": 1}}`)
	require.NoError(t, os.WriteFile(m.Path(), doc, 0o644))

	loaded, err := m.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, loaded.CurrentEquity)
	assert.Equal(t, 99, loaded.Version)
}

func TestManager_DeleteRemovesPrimaryAndBackup(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.NoError(t, m.SaveState(ctx, sampleState()))
	require.NoError(t, m.CreateBackup(ctx))
	require.NoError(t, m.DeleteState(ctx))

	_, err := os.Stat(m.Path())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(m.BackupPath())
	assert.True(t, os.IsNotExist(err))

	// Deleting again is a no-op.
	assert.NoError(t, m.DeleteState(ctx))
}
