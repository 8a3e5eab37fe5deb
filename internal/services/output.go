package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

// Output object names shared by the file and object-store sinks.
const (
	CardsObject  = "cards.json"
	PricesObject = "prices.json"
	SetsObject   = "sets.json"
)

// Sink receives the aggregate of a finished run.
type Sink interface {
	WriteCards(ctx context.Context, cards []models.CanonicalCard) error
	WritePrices(ctx context.Context, prices map[string]models.PriceRecord) error
	WriteSets(ctx context.Context, sets []models.SetRecord) error
}

// JSONFileSink writes indented JSON documents into a directory.
type JSONFileSink struct {
	dir string
}

func NewJSONFileSink(dir string) *JSONFileSink {
	return &JSONFileSink{dir: dir}
}

func (s *JSONFileSink) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	target := filepath.Join(s.dir, name)
	if err := writeFileAtomic(target, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	log.Printf("Output: wrote %s (%d bytes)", target, len(data))
	return nil
}

func (s *JSONFileSink) WriteCards(_ context.Context, cards []models.CanonicalCard) error {
	return s.write(CardsObject, nonNil(cards))
}

func (s *JSONFileSink) WritePrices(_ context.Context, prices map[string]models.PriceRecord) error {
	if prices == nil {
		prices = map[string]models.PriceRecord{}
	}
	return s.write(PricesObject, prices)
}

func (s *JSONFileSink) WriteSets(_ context.Context, sets []models.SetRecord) error {
	return s.write(SetsObject, nonNil(sets))
}

// ObjectStoreSink uploads the same documents as JSONFileSink under a key prefix.
type ObjectStoreSink struct {
	uploader Uploader
	prefix   string
}

func NewObjectStoreSink(uploader Uploader, prefix string) *ObjectStoreSink {
	return &ObjectStoreSink{uploader: uploader, prefix: prefix}
}

func (s *ObjectStoreSink) upload(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	key := name
	if s.prefix != "" {
		key = s.prefix + "/" + name
	}
	if err := s.uploader.Upload(ctx, key, data); err != nil {
		return err
	}
	log.Printf("Output: uploaded %s (%d bytes)", key, len(data))
	return nil
}

func (s *ObjectStoreSink) WriteCards(ctx context.Context, cards []models.CanonicalCard) error {
	return s.upload(ctx, CardsObject, nonNil(cards))
}

func (s *ObjectStoreSink) WritePrices(ctx context.Context, prices map[string]models.PriceRecord) error {
	if prices == nil {
		prices = map[string]models.PriceRecord{}
	}
	return s.upload(ctx, PricesObject, prices)
}

func (s *ObjectStoreSink) WriteSets(ctx context.Context, sets []models.SetRecord) error {
	return s.upload(ctx, SetsObject, nonNil(sets))
}

// MultiSink fans every write out to each sink and joins their errors.
// A failing sink does not stop the others.
type MultiSink []Sink

func (m MultiSink) WriteCards(ctx context.Context, cards []models.CanonicalCard) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteCards(ctx, cards))
	}
	return errors.Join(errs...)
}

func (m MultiSink) WritePrices(ctx context.Context, prices map[string]models.PriceRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WritePrices(ctx, prices))
	}
	return errors.Join(errs...)
}

func (m MultiSink) WriteSets(ctx context.Context, sets []models.SetRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteSets(ctx, sets))
	}
	return errors.Join(errs...)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// CardDeleter is implemented by sinks that keep rows across runs and must be
// told when a card code disappears.
type CardDeleter interface {
	DeleteCards(ctx context.Context, codes []string) error
}

// DeleteCards forwards to every sink that implements CardDeleter.
func (m MultiSink) DeleteCards(ctx context.Context, codes []string) error {
	var errs []error
	for _, s := range m {
		if d, ok := s.(CardDeleter); ok {
			errs = append(errs, d.DeleteCards(ctx, codes))
		}
	}
	return errors.Join(errs...)
}
