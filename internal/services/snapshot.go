package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

// Snapshots are the JSON documents a previous run wrote. They feed the
// set remap pass.

func LoadSetSnapshot(path string) ([]models.SetRecord, error) {
	var sets []models.SetRecord
	if err := loadJSONFile(path, &sets); err != nil {
		return nil, err
	}
	return sets, nil
}

func LoadCardSnapshot(path string) ([]models.CanonicalCard, error) {
	var cards []models.CanonicalCard
	if err := loadJSONFile(path, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// LoadPriceSnapshot reads a prices document, restoring each record's card code from its key.
func LoadPriceSnapshot(path string) (map[string]models.PriceRecord, error) {
	var prices map[string]models.PriceRecord
	if err := loadJSONFile(path, &prices); err != nil {
		return nil, err
	}
	restorePriceCodes(prices)
	return prices, nil
}

// DownloadSnapshot decodes the object stored under key into v.
func DownloadSnapshot(ctx context.Context, u Uploader, key string, v any) error {
	data, err := u.Download(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return nil
}

// IsSnapshotMissing reports whether err means the snapshot was never written,
// as opposed to being unreadable.
func IsSnapshotMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, ErrObjectNotFound)
}

// SnapshotSource reads the documents a previous run wrote. With an uploader
// it downloads them from the object store under prefix, otherwise it reads
// them from dir.
type SnapshotSource struct {
	dir      string
	uploader Uploader
	prefix   string
}

func NewSnapshotSource(dir string, uploader Uploader, prefix string) *SnapshotSource {
	return &SnapshotSource{dir: dir, uploader: uploader, prefix: prefix}
}

// Location names where the source reads from, for log lines.
func (s *SnapshotSource) Location() string {
	if s.uploader != nil {
		return "object store " + s.prefix
	}
	return s.dir
}

func (s *SnapshotSource) load(ctx context.Context, name string, v any) error {
	if s.uploader == nil {
		return loadJSONFile(filepath.Join(s.dir, name), v)
	}
	key := name
	if s.prefix != "" {
		key = s.prefix + "/" + name
	}
	return DownloadSnapshot(ctx, s.uploader, key, v)
}

func (s *SnapshotSource) Sets(ctx context.Context) ([]models.SetRecord, error) {
	var sets []models.SetRecord
	if err := s.load(ctx, SetsObject, &sets); err != nil {
		return nil, err
	}
	return sets, nil
}

func (s *SnapshotSource) Cards(ctx context.Context) ([]models.CanonicalCard, error) {
	var cards []models.CanonicalCard
	if err := s.load(ctx, CardsObject, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *SnapshotSource) Prices(ctx context.Context) (map[string]models.PriceRecord, error) {
	var prices map[string]models.PriceRecord
	if err := s.load(ctx, PricesObject, &prices); err != nil {
		return nil, err
	}
	restorePriceCodes(prices)
	return prices, nil
}

func restorePriceCodes(prices map[string]models.PriceRecord) {
	for code, p := range prices {
		p.CardCode = code
		prices[code] = p
	}
}

func loadJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	return nil
}
