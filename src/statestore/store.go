package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradeexecutor/src/model"
)

// Snapshot keys. Markets, prices and the closing set are rebuilt at startup
// and never persisted.
const (
	KeyStrategies       = "strategies"
	KeyTradesOpen       = "tradesOpen"
	KeyVirtualBalances  = "virtualBalances"
	KeyBalanceHistory   = "balanceHistory"
	KeyPublicStrategies = "publicStrategies"
	KeyVersion          = "Version"
)

const flushDelay = 100 * time.Millisecond

// Snapshot is one named typed object serialized as JSON.
type Snapshot struct {
	Key       string `gorm:"primaryKey;size:64"`
	Data      []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// Store is the single writer of the persisted state: a snapshot table of
// named documents plus the row-capped append-only transaction log. Writes
// are coalesced through a dirty-set with a short flush delay.
type Store struct {
	db      *gorm.DB
	maxRows int

	mu     sync.Mutex
	dirty  map[string][]byte
	timer  *time.Timer
	closed bool
}

// Open connects to postgres when a DSN is configured, otherwise to the
// embedded sqlite file, and migrates the schema.
func Open(databaseURL, databasePath string, maxRows int) (*Store, error) {
	var dialector gorm.Dialector
	if databaseURL != "" {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(databasePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if err := db.AutoMigrate(&Snapshot{}, &model.Transaction{}); err != nil {
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}

	logger.WithField("component", "statestore").Info("state database ready")
	return &Store{db: db, maxRows: maxRows, dirty: make(map[string][]byte)}, nil
}

// WithDB builds a store around an existing gorm handle. Used by tests.
func WithDB(db *gorm.DB, maxRows int) *Store {
	return &Store{db: db, maxRows: maxRows, dirty: make(map[string][]byte)}
}

// Load reads one snapshot into out. The boolean reports presence.
func (s *Store) Load(key string, out any) (bool, error) {
	var snap Snapshot
	err := s.db.First(&snap, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}
	if err := json.Unmarshal(snap.Data, out); err != nil {
		return false, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return true, nil
}

// MarkDirty serializes the value now, under the caller's lock, and schedules
// a coalesced flush. Serializing immediately keeps the flush goroutine away
// from live engine state.
func (s *Store) MarkDirty(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		logger.WithError(err).WithField("key", key).Error("failed to serialize snapshot")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.dirty[key] = data
	if s.timer == nil {
		s.timer = time.AfterFunc(flushDelay, func() {
			if err := s.Flush(); err != nil {
				logger.WithError(err).Error("state flush failed")
			}
		})
	}
}

// Flush writes the dirty set in one transaction.
func (s *Store) Flush() error {
	s.mu.Lock()
	pending := s.dirty
	s.dirty = make(map[string][]byte)
	s.timer = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for key, data := range pending {
			snap := Snapshot{Key: key, Data: data, UpdatedAt: time.Now()}
			res := tx.Model(&Snapshot{}).Where("key = ?", key).
				Updates(map[string]any{"data": snap.Data, "updated_at": snap.UpdatedAt})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				if err := tx.Create(&snap).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// AppendTransaction adds a row to the transaction log and trims the log down
// to the configured cap.
func (s *Store) AppendTransaction(t *model.Transaction) error {
	if err := s.db.Create(t).Error; err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	if s.maxRows > 0 {
		err := s.db.Exec(
			"DELETE FROM transactions WHERE id <= (SELECT MAX(id) FROM transactions) - ?",
			s.maxRows,
		).Error
		if err != nil {
			return fmt.Errorf("failed to trim transaction log: %w", err)
		}
	}
	return nil
}

// Transactions returns the newest rows of the log, newest first.
func (s *Store) Transactions(limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.Transaction
	err := s.db.Order("id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return rows, nil
}

// Close performs a final best-effort flush and stops the timer.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.Flush()
}
