// Package storage is the durable local cache backing the sync engine:
// session drafts, small key-value state and the raw message log used for
// cold-start rendering. SQLite in WAL mode, accessed through GORM.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"happy/logging"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger routes GORM logs to the happy logger
type gormLogger struct {
	level logger.LogLevel
}

// LogMode sets the log level
func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{level: level}
}

// Info logs info messages
func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		logging.Logger.Info(fmt.Sprintf(msg, data...))
	}
}

// Warn logs warn messages
func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		logging.Logger.Warn(fmt.Sprintf(msg, data...))
	}
}

// Error logs error messages
func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		logging.Logger.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs SQL queries - only in debug mode
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level < logger.Info {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logging.Logger.Error("gorm query error",
			"error", err,
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	} else if elapsed > 200*time.Millisecond {
		logging.Logger.Warn("slow query",
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	} else {
		logging.Logger.Debug("gorm query",
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	}
}

// newGormLogger creates a GORM logger that respects the debug setting
func newGormLogger() logger.Interface {
	if os.Getenv("HAPPY_DEBUG") == "1" {
		return (&gormLogger{}).LogMode(logger.Info)
	}
	return (&gormLogger{}).LogMode(logger.Silent)
}

// Cache provides durable local storage for the sync engine
type Cache struct {
	db *gorm.DB
}

// NewCache opens (or creates) the cache database with WAL mode enabled
func NewCache(dbPath string) (*Cache, error) {
	if len(dbPath) > 0 && dbPath[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, dbPath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		PrepareStmt: false,
		NowFunc:     func() time.Time { return time.Now().UTC() },
		Logger:      newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode allows multiple readers alongside the single writer
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA synchronous=NORMAL")

	if err := db.AutoMigrate(&Draft{}, &CacheEntry{}, &CachedRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(0)

	return &Cache{db: db}, nil
}

// Close closes the underlying database
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDraft reads the cached draft for a session; empty string when none
func (c *Cache) GetDraft(ctx context.Context, sessionID string) (string, error) {
	var draft Draft
	err := c.db.WithContext(ctx).First(&draft, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load draft: %w", err)
	}
	return draft.Text, nil
}

// SetDraft saves a session's draft; empty text deletes it. The write is
// idempotent (read-modify-write of a single row).
func (c *Cache) SetDraft(ctx context.Context, sessionID, text string) error {
	return withRetry(func() error {
		if text == "" {
			return c.db.WithContext(ctx).Delete(&Draft{}, "session_id = ?", sessionID).Error
		}
		return c.db.WithContext(ctx).Save(&Draft{SessionID: sessionID, Text: text}).Error
	}, 5)
}

// GetValue reads a generic cache value; ok is false when the key is unset
func (c *Cache) GetValue(ctx context.Context, key string) (string, bool, error) {
	var entry CacheEntry
	err := c.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load cache entry: %w", err)
	}
	return entry.Value, true, nil
}

// SetValue writes a generic cache value
func (c *Cache) SetValue(ctx context.Context, key, value string) error {
	return withRetry(func() error {
		return c.db.WithContext(ctx).Save(&CacheEntry{Key: key, Value: value}).Error
	}, 5)
}

// PutRecords stores raw message log items for a session. Re-inserting an
// existing record id is a no-op update, so re-syncs are safe.
func (c *Cache) PutRecords(ctx context.Context, sessionID string, records []CachedRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		records[i].SessionID = sessionID
	}
	return withRetry(func() error {
		return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range records {
				if err := tx.Save(&records[i]).Error; err != nil {
					return fmt.Errorf("failed to store record: %w", err)
				}
			}
			return nil
		})
	}, 5)
}

// GetRecords loads a session's cached message log in sequence order
func (c *Cache) GetRecords(ctx context.Context, sessionID string) ([]CachedRecord, error) {
	var records []CachedRecord
	err := c.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return records, nil
}

// DropSession removes all cached state for a session that no longer
// exists on the server
func (c *Cache) DropSession(ctx context.Context, sessionID string) error {
	return withRetry(func() error {
		return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&Draft{}, "session_id = ?", sessionID).Error; err != nil {
				return err
			}
			return tx.Delete(&CachedRecord{}, "session_id = ?", sessionID).Error
		})
	}, 5)
}

// withRetry retries busy/locked sqlite errors with a linear delay
func withRetry(fn func() error, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}

		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
			time.Sleep(time.Millisecond * time.Duration(50*(i+1)))
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries", maxRetries)
}
