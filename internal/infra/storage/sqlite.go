package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"autobay/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal is the SQLite trade history of finished sell orders.
type Journal struct {
	db *gorm.DB
}

// NewJournal opens (or creates) the journal database at dbPath.
func NewJournal(dbPath string) (*Journal, error) {
	// Ensure directory exists
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record appends a finished order.
func (j *Journal) Record(rec *domain.TradeRecord) error {
	return j.db.Create(rec).Error
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(limit int) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	err := j.db.Order("created_at desc").Order("id desc").Limit(limit).Find(&recs).Error
	return recs, err
}

// Summary counts finished trades by outcome.
type Summary struct {
	Closed   int64
	Canceled int64
}

// Summarize counts journal entries by outcome.
func (j *Journal) Summarize() (Summary, error) {
	var s Summary
	if err := j.db.Model(&domain.TradeRecord{}).
		Where("status = ?", domain.OrderStatusClosed).Count(&s.Closed).Error; err != nil {
		return s, err
	}
	err := j.db.Model(&domain.TradeRecord{}).
		Where("status = ?", domain.OrderStatusCanceled).Count(&s.Canceled).Error
	return s, err
}

// Close releases the underlying connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
