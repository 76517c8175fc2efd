// Package cache keeps the last fetched order list on the device so history
// can be shown without a connection.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
)

// OrdersKey is shared by every account on the device.
// TODO: namespace by user id once shared devices need to be supported.
const OrdersKey = "orders_cache"

// CacheError wraps a local storage failure. It is logged, never returned to callers.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

type entry struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

func (entry) TableName() string {
	return "cache_entries"
}

type Store struct {
	db  *gorm.DB
	log logger.ILogger
}

func Open(path string, log logger.ILogger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("migrate cache: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save replaces the snapshot with orders. Failures are logged and dropped.
func (s *Store) Save(ctx context.Context, orders []model.Order) {
	if orders == nil {
		orders = []model.Order{}
	}

	data, err := json.Marshal(orders)
	if err != nil {
		s.log.Warning("cache save skipped", logger.Error(&CacheError{Op: "encode", Err: err}))
		return
	}

	e := entry{Key: OrdersKey, Value: string(data), UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&e).Error
	if err != nil {
		s.log.Warning("cache save failed", logger.Error(&CacheError{Op: "save", Err: err}))
	}
}

// Load returns the last snapshot. A missing or unreadable snapshot is empty.
func (s *Store) Load(ctx context.Context) []model.Order {
	var e entry
	err := s.db.WithContext(ctx).Where("key = ?", OrdersKey).Take(&e).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warning("cache load failed", logger.Error(&CacheError{Op: "load", Err: err}))
		}
		return []model.Order{}
	}

	var orders []model.Order
	if err := json.Unmarshal([]byte(e.Value), &orders); err != nil {
		s.log.Warning("cache snapshot corrupt", logger.Error(&CacheError{Op: "decode", Err: err}))
		return []model.Order{}
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders
}
