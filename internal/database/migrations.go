package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

// AutoMigrate creates or updates the cards, card_prices and sets tables, then
// runs the data migrations.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.CanonicalCard{}, &models.PriceRecord{}, &models.SetRecord{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return RunMigrations(db)
}

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB) error {
	return cleanupOrphanPrices(db)
}

// cleanupOrphanPrices removes price rows whose card no longer exists, which
// happens when a remap renamed a card code in an older version.
func cleanupOrphanPrices(db *gorm.DB) error {
	result := db.Exec(`
		DELETE FROM card_prices
		WHERE card_code NOT IN (SELECT card_code FROM cards)
	`)
	if result.Error != nil {
		return fmt.Errorf("cleanup orphan prices: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d orphaned card_prices entries", result.RowsAffected)
	}
	return nil
}
