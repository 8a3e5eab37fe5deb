package database

import (
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the SQLite database at dbPath and migrates the card schema.
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dbPath, err)
	}

	log.Printf("Database connected: %s", dbPath)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")
	return db, nil
}
