package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/metrics"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

// JPCheckpoint is the scrape state flushed after every listing page.
type JPCheckpoint struct {
	Query          JPQuery                `json:"query"`
	TotalPages     int                    `json:"totalPages"`
	PagesCompleted int                    `json:"pagesCompleted"`
	Cards          []models.RawHTMLCard   `json:"cards"`
	Failures       []models.ScrapeFailure `json:"failures"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// LoadJPCheckpoint reads a checkpoint file. A missing file returns nil, nil.
func LoadJPCheckpoint(path string) (*JPCheckpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp JPCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	return &cp, nil
}

func (c *JPCheckpoint) save(path string) error {
	c.UpdatedAt = time.Now()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	return nil
}

// JPPipeline scrapes the Japanese listing page by page, flushing a checkpoint
// after each page, then normalizes and writes the whole result.
type JPPipeline struct {
	scraper    *JPScraperService
	resolver   *NameResolver
	sink       Sink
	checkpoint string
	maxPages   int
}

func NewJPPipeline(scraper *JPScraperService, resolver *NameResolver, sink Sink, cfg config.ScraperConfig) *JPPipeline {
	return &JPPipeline{
		scraper:    scraper,
		resolver:   resolver,
		sink:       sink,
		checkpoint: cfg.CheckpointFile,
		maxPages:   cfg.MaxPages,
	}
}

type JPRunResult struct {
	Cards      []models.CanonicalCard
	Prices     map[string]models.PriceRecord
	Scraped    int
	Pages      int
	ResumedAt  int
	Failures   []models.ScrapeFailure
	Duplicates int
	Skipped    int
}

// Run scrapes every listing page of q and normalizes the cards against
// mapping. When the checkpoint file holds an unfinished run of the same
// query, scraping resumes after its last page. A listing page that cannot be
// fetched stops the run with the checkpoint intact.
func (p *JPPipeline) Run(ctx context.Context, q JPQuery, mapping *models.SetMapping, status *RunStatus) (*JPRunResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.RunJP")
	result, err := p.run(ctx, q, mapping, status)
	if result != nil {
		span.SetAttributes(attribute.Int("cards", len(result.Cards)), attribute.Int("failures", len(result.Failures)))
	}
	endSpan(span, err)
	return result, err
}

func (p *JPPipeline) run(ctx context.Context, q JPQuery, mapping *models.SetMapping, status *RunStatus) (*JPRunResult, error) {
	started := time.Now()
	cp := p.resume(q)
	result := &JPRunResult{ResumedAt: cp.PagesCompleted}

	status.SetState(RunFetchingPageBatch)
	totalPages, err := p.scraper.ListPages(ctx, q)
	if err != nil {
		return nil, err
	}
	if p.maxPages > 0 && totalPages > p.maxPages {
		totalPages = p.maxPages
	}
	cp.TotalPages = totalPages
	status.SetPagesTotal(totalPages)
	status.AddFailures(cp.Failures...)
	log.Printf("JPPipeline: %d listing pages, starting at page %d", totalPages, cp.PagesCompleted+1)

	var pageTimes []time.Duration
	for page := cp.PagesCompleted + 1; page <= totalPages; page++ {
		status.SetState(RunFetchingPageBatch)
		pageStart := time.Now()

		urls, err := p.scraper.ListCardURLs(ctx, q, page)
		if err != nil {
			return nil, fmt.Errorf("listing page %d: %w", page, err)
		}
		cards, failures := p.scraper.ScrapePage(ctx, urls)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status.SetState(RunAggregating)
		cp.Cards = append(cp.Cards, cards...)
		cp.Failures = append(cp.Failures, failures...)
		cp.PagesCompleted = page
		if p.checkpoint != "" {
			if err := cp.save(p.checkpoint); err != nil {
				return nil, err
			}
		}
		status.AddFailures(failures...)

		elapsed := time.Since(pageStart)
		pageTimes = append(pageTimes, elapsed)
		metrics.BatchDuration.WithLabelValues("jp").Observe(elapsed.Seconds())
		eta := estimateRemaining(pageTimes, totalPages-page, 1)
		metrics.RunETASeconds.WithLabelValues("jp").Set(eta.Seconds())
		status.Progress(page, len(cp.Cards), eta)
		log.Printf("JPPipeline: page %d/%d scraped %d cards (%d failed) in %v, %d total, ETA %v",
			page, totalPages, len(cards), len(failures), elapsed.Round(time.Millisecond), len(cp.Cards), eta.Round(time.Second))
		logMemoryUsage("JPPipeline")
	}
	metrics.RunETASeconds.WithLabelValues("jp").Set(0)

	normalizer := NewNormalizer(p.resolver, mapping)
	agg := newCardAggregate("jp", "JPPipeline")
	for _, raw := range cp.Cards {
		agg.add(normalizer.NormalizeHTMLCard(raw))
	}

	result.Cards = agg.cards
	result.Prices = agg.prices
	result.Scraped = len(cp.Cards)
	result.Pages = cp.PagesCompleted
	result.Failures = cp.Failures
	result.Duplicates = agg.duplicates
	result.Skipped = agg.skipped
	status.AddUnresolved(agg.unresolved...)

	status.SetState(RunWriting)
	if p.sink != nil {
		if err := p.sink.WriteCards(ctx, result.Cards); err != nil {
			return result, fmt.Errorf("failed to write cards: %w", err)
		}
		if err := p.sink.WritePrices(ctx, result.Prices); err != nil {
			return result, fmt.Errorf("failed to write prices: %w", err)
		}
	}

	if p.checkpoint != "" {
		if err := os.Remove(p.checkpoint); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("JPPipeline: failed to remove checkpoint: %v", err)
		}
	}

	log.Printf("JPPipeline: finished in %v", time.Since(started).Round(time.Second))
	logRunSummary("JPPipeline", result.Cards, 0)
	if len(result.Failures) > 0 {
		log.Printf("JPPipeline: %d cards failed to scrape:", len(result.Failures))
		for _, f := range result.Failures {
			log.Printf("JPPipeline:   %s: %s", f.URL, f.Reason)
		}
	}
	return result, nil
}

// resume returns the checkpoint to continue from, or a fresh one.
func (p *JPPipeline) resume(q JPQuery) *JPCheckpoint {
	fresh := &JPCheckpoint{Query: q}
	if p.checkpoint == "" {
		return fresh
	}
	cp, err := LoadJPCheckpoint(p.checkpoint)
	if err != nil {
		log.Printf("JPPipeline: ignoring checkpoint: %v", err)
		return fresh
	}
	if cp == nil {
		return fresh
	}
	if cp.Query != q {
		log.Printf("JPPipeline: checkpoint is for a different query, starting over")
		return fresh
	}
	log.Printf("JPPipeline: resuming after page %d with %d cards", cp.PagesCompleted, len(cp.Cards))
	return cp
}
