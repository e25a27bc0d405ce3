// Package store persists the trade journal, equity curve and reconciliation
// audit trail in SQLite.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store implements journal storage using Gorm + SQLite.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&TradeRecord{}, &EquityPoint{}, &ReconciliationRecord{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP
	// reads while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveTrade upserts a journal row keyed by signal id, so replays of the same
// signal update in place instead of duplicating.
func (s *Store) SaveTrade(rec *TradeRecord) error {
	if rec == nil {
		return fmt.Errorf("store: trade record is nil")
	}
	if strings.TrimSpace(rec.SignalID) == "" {
		return fmt.Errorf("store: trade record needs a signal id")
	}
	now := time.Now().Unix()
	if rec.CreatedAtUnix == 0 {
		rec.CreatedAtUnix = now
	}
	rec.UpdatedAtUnix = now
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "signal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "reject_reason", "quantity", "stop_loss", "risk_amount", "warnings_json", "updated_at",
		}),
	}).Create(rec).Error
}

func (s *Store) UpdateTradeStatus(signalID string, status TradeStatus) error {
	res := s.db.Model(&TradeRecord{}).
		Where("signal_id = ?", signalID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().Unix()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: no trade with signal id %s", signalID)
	}
	return nil
}

func (s *Store) RecentTrades(limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []TradeRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (s *Store) RecordEquity(point EquityPoint) error {
	if point.RecordedAtUnix == 0 {
		point.RecordedAtUnix = time.Now().Unix()
	}
	return s.db.Create(&point).Error
}

func (s *Store) EquityHistory(since time.Time, limit int) ([]EquityPoint, error) {
	if limit <= 0 {
		limit = 1000
	}
	var out []EquityPoint
	err := s.db.Where("recorded_at >= ?", since.Unix()).
		Order("recorded_at ASC").Limit(limit).Find(&out).Error
	return out, err
}

// RecordReconciliation appends one audit row. mismatches and errors are stored
// as JSON documents.
func (s *Store) RecordReconciliation(fullyReconciled bool, mismatches any, errs []string, checkedAt time.Time) error {
	mismatchJSON, err := json.Marshal(mismatches)
	if err != nil {
		return fmt.Errorf("store: encoding mismatches: %w", err)
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("store: encoding errors: %w", err)
	}
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}
	rec := ReconciliationRecord{
		FullyReconciled: fullyReconciled,
		MismatchesJSON:  datatypes.JSON(mismatchJSON),
		ErrorsJSON:      datatypes.JSON(errJSON),
		CheckedAtUnix:   checkedAt.Unix(),
	}
	return s.db.Create(&rec).Error
}

func (s *Store) LastReconciliation() (*ReconciliationRecord, error) {
	var rec ReconciliationRecord
	err := s.db.Order("checked_at DESC").First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
