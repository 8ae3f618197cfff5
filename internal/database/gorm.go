package database

import (
	"errors"
	"fmt"
	"log"
	"time"

	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SchemaVersion is recorded in store_meta on first initialization.
const SchemaVersion = 2

// Open connects to the configured database and runs auto-migration.
func Open(cfg *config.Config, level logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.PostgresDSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DBPath + "?_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("database: connect %s: %w", cfg.DBDriver, err)
	}
	log.Printf("Connected to %s successfully", cfg.DBDriver)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the store tables and the store_meta header row.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database: auto-migrate: %w", err)
	}

	var meta models.StoreMeta
	err := db.First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		meta = models.StoreMeta{SchemaVersion: SchemaVersion, InitializedAt: time.Now().UTC()}
		if err := db.Create(&meta).Error; err != nil {
			return fmt.Errorf("database: init meta: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("database: read meta: %w", err)
	}
	if meta.SchemaVersion < SchemaVersion {
		if err := db.Model(&meta).Update("schema_version", SchemaVersion).Error; err != nil {
			return fmt.Errorf("database: bump schema version: %w", err)
		}
	}
	return nil
}

// OpenMemory returns a migrated in-memory SQLite database pinned to a single
// connection so every query sees the same data.
func OpenMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open memory: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: open memory: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
