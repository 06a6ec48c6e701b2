package database

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"propmatch/server/internal/models"
)

// New opens the SQLite database at dbPath and prepares it for concurrent
// workers (WAL journal, foreign keys on).
func New(dbPath string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// NewTestDB opens a private in-memory database for tests. Each call gets its
// own schema.
func NewTestDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	// Keep the shared in-memory database alive for the test's duration.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(1)
	return db, nil
}

// MigrateSchema creates or updates all tables of the dedup core.
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Listing{},
		&models.Operation{},
		&models.Candidate{},
		&models.Property{},
		&models.Conflict{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
