package database

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

const defaultBatchSize = 500

// CardStore upserts pipeline output into the gorm database.
type CardStore struct {
	db        *gorm.DB
	batchSize int
}

func NewCardStore(db *gorm.DB) *CardStore {
	return &CardStore{db: db, batchSize: defaultBatchSize}
}

func upsertOn(column string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: column}},
		UpdateAll: true,
	}
}

func (s *CardStore) WriteCards(ctx context.Context, cards []models.CanonicalCard) error {
	if len(cards) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.CanonicalCard, len(cards))
	for i, c := range cards {
		c.UpdatedAt = now
		rows[i] = c
	}

	result := s.db.WithContext(ctx).Clauses(upsertOn("card_code")).CreateInBatches(rows, s.batchSize)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert cards: %w", result.Error)
	}
	log.Printf("CardStore: upserted %d cards", len(rows))
	return nil
}

func (s *CardStore) WritePrices(ctx context.Context, prices map[string]models.PriceRecord) error {
	if len(prices) == 0 {
		return nil
	}
	rows := PriceRows(prices)
	now := time.Now()
	for i := range rows {
		rows[i].UpdatedAt = now
	}

	result := s.db.WithContext(ctx).Clauses(upsertOn("card_code")).CreateInBatches(rows, s.batchSize)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert prices: %w", result.Error)
	}
	log.Printf("CardStore: upserted %d prices", len(rows))
	return nil
}

func (s *CardStore) WriteSets(ctx context.Context, sets []models.SetRecord) error {
	if len(sets) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.SetRecord, len(sets))
	for i, set := range sets {
		set.UpdatedAt = now
		rows[i] = set
	}

	result := s.db.WithContext(ctx).Clauses(upsertOn("name")).CreateInBatches(rows, s.batchSize)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert sets: %w", result.Error)
	}
	log.Printf("CardStore: upserted %d sets", len(rows))
	return nil
}

// DeleteCards removes cards and their prices by code.
func (s *CardStore) DeleteCards(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("card_code IN ?", codes).Delete(&models.PriceRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete prices: %w", err)
		}
		if err := tx.Where("card_code IN ?", codes).Delete(&models.CanonicalCard{}).Error; err != nil {
			return fmt.Errorf("failed to delete cards: %w", err)
		}
		return nil
	})
}

func (s *CardStore) LoadCards(ctx context.Context) ([]models.CanonicalCard, error) {
	var cards []models.CanonicalCard
	if err := s.db.WithContext(ctx).Order("card_code").Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}
	return cards, nil
}

func (s *CardStore) LoadPrices(ctx context.Context) (map[string]models.PriceRecord, error) {
	var rows []models.PriceRecord
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	prices := make(map[string]models.PriceRecord, len(rows))
	for _, p := range rows {
		prices[p.CardCode] = p
	}
	return prices, nil
}

func (s *CardStore) LoadSets(ctx context.Context) ([]models.SetRecord, error) {
	var sets []models.SetRecord
	if err := s.db.WithContext(ctx).Order("release_date, name").Find(&sets).Error; err != nil {
		return nil, fmt.Errorf("failed to load sets: %w", err)
	}
	return sets, nil
}

// PriceRows flattens a prices map into rows ordered by card code, with each
// row's CardCode set from its key.
func PriceRows(prices map[string]models.PriceRecord) []models.PriceRecord {
	codes := make([]string, 0, len(prices))
	for code := range prices {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	rows := make([]models.PriceRecord, 0, len(codes))
	for _, code := range codes {
		p := prices[code]
		p.CardCode = code
		rows = append(rows, p)
	}
	return rows
}
