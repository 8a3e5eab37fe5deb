package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel/attribute"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/metrics"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

const defaultBatchSize = 10

// CardPipeline drives the REST API ingestion: sets first, then cards in
// concurrent page batches. Output is written once, after the last batch.
type CardPipeline struct {
	api        *PokemonTCGService
	reconciler *SetReconciler
	resolver   *NameResolver
	sink       Sink

	query     string
	fields    string
	orderBy   string
	pageSize  int
	batchSize int
}

func NewCardPipeline(api *PokemonTCGService, reconciler *SetReconciler, resolver *NameResolver, sink Sink, cfg config.APIConfig) *CardPipeline {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 250
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &CardPipeline{
		api:        api,
		reconciler: reconciler,
		resolver:   resolver,
		sink:       sink,
		query:      cfg.Query,
		fields:     cfg.Select,
		orderBy:    cfg.OrderBy,
		pageSize:   pageSize,
		batchSize:  batchSize,
	}
}

// WithAPIKey returns a copy of the pipeline whose API client uses key.
func (p *CardPipeline) WithAPIKey(key string) *CardPipeline {
	clone := *p
	clone.api = p.api.WithAPIKey(key)
	return &clone
}

func (p *CardPipeline) HasCredential() bool {
	return p.api.HasCredential()
}

// RunSets fetches every set, reconciles aliases and shared codes, and writes
// the canonical set list.
func (p *CardPipeline) RunSets(ctx context.Context, status *RunStatus) (*ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.RunSets")
	result, err := p.runSets(ctx, status)
	endSpan(span, err)
	return result, err
}

func (p *CardPipeline) runSets(ctx context.Context, status *RunStatus) (*ReconcileResult, error) {
	if !p.api.HasCredential() {
		return nil, ErrMissingCredential
	}

	status.SetState(RunFetchingPageBatch)
	raw, err := p.api.FetchAllSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sets: %w", err)
	}
	log.Printf("CardPipeline: fetched %d sets", len(raw))

	status.SetState(RunAggregating)
	result := p.reconciler.Reconcile(raw)
	log.Printf("CardPipeline: reconciled %d sets into %d (%d merges)", len(raw), len(result.Sets), len(result.Merges))

	status.SetState(RunWriting)
	if p.sink != nil {
		if err := p.sink.WriteSets(ctx, result.Sets); err != nil {
			return nil, fmt.Errorf("failed to write sets: %w", err)
		}
	}
	return result, nil
}

// CardRunResult is the aggregate of one card run.
type CardRunResult struct {
	Cards       []models.CanonicalCard
	Prices      map[string]models.PriceRecord
	TotalCount  int
	Pages       int
	FailedPages []int
	Duplicates  int
	Skipped     int
	Unresolved  []string
}

type pageResult struct {
	page    int
	cards   []models.RawAPICard
	total   int
	err     error
	elapsed time.Duration
}

// RunCards pages through the card endpoint in batches until a short page or a
// batch in which every page failed. Cards are normalized against mapping.
func (p *CardPipeline) RunCards(ctx context.Context, mapping *models.SetMapping, status *RunStatus) (*CardRunResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.RunCards")
	result, err := p.runCards(ctx, mapping, status)
	if result != nil {
		span.SetAttributes(attribute.Int("cards", len(result.Cards)), attribute.Int("pages", result.Pages))
	}
	endSpan(span, err)
	return result, err
}

func (p *CardPipeline) runCards(ctx context.Context, mapping *models.SetMapping, status *RunStatus) (*CardRunResult, error) {
	if !p.api.HasCredential() {
		return nil, ErrMissingCredential
	}

	normalizer := NewNormalizer(p.resolver, mapping)
	agg := newCardAggregate("api", "CardPipeline")
	result := &CardRunResult{}
	started := time.Now()
	var pageTimes []time.Duration
	var failures []error

	for first := 1; ; first += p.batchSize {
		status.SetState(RunFetchingPageBatch)
		batchStart := time.Now()
		pages := p.fetchBatch(ctx, first)
		metrics.BatchDuration.WithLabelValues("api").Observe(time.Since(batchStart).Seconds())

		status.SetState(RunAggregating)
		terminal, failed := false, 0
		for _, pr := range pages {
			if pr.err != nil {
				failed++
				failures = append(failures, pr.err)
				result.FailedPages = append(result.FailedPages, pr.page)
				metrics.PagesFetchedTotal.WithLabelValues("api", "error").Inc()
				log.Printf("CardPipeline: page %d failed: %v", pr.page, pr.err)
				if errors.Is(pr.err, ErrMissingCredential) || ctx.Err() != nil {
					return nil, pr.err
				}
				continue
			}

			metrics.PagesFetchedTotal.WithLabelValues("api", "ok").Inc()
			pageTimes = append(pageTimes, pr.elapsed)
			result.Pages++
			if pr.total > result.TotalCount {
				result.TotalCount = pr.total
			}
			log.Printf("CardPipeline: page %d returned %d cards", pr.page, len(pr.cards))

			for _, raw := range pr.cards {
				agg.add(normalizer.NormalizeAPICard(raw))
			}
			if len(pr.cards) < p.pageSize {
				terminal = true
			}
		}
		if failed == len(pages) {
			terminal = true
		}

		pagesTotal := int(math.Ceil(float64(result.TotalCount) / float64(p.pageSize)))
		eta := estimateRemaining(pageTimes, pagesTotal-result.Pages, p.batchSize)
		status.SetPagesTotal(pagesTotal)
		status.Progress(result.Pages, len(agg.cards), eta)
		metrics.RunETASeconds.WithLabelValues("api").Set(eta.Seconds())
		log.Printf("CardPipeline: batch %d-%d done in %v, %d cards so far, %d/%d pages, ETA %v",
			first, first+p.batchSize-1, time.Since(batchStart).Round(time.Millisecond),
			len(agg.cards), result.Pages, pagesTotal, eta.Round(time.Second))
		logMemoryUsage("CardPipeline")

		if terminal {
			break
		}
	}
	metrics.RunETASeconds.WithLabelValues("api").Set(0)

	result.Cards = agg.cards
	result.Prices = agg.prices
	result.Duplicates = agg.duplicates
	result.Skipped = agg.skipped
	result.Unresolved = agg.unresolved
	status.AddUnresolved(agg.unresolved...)

	if len(result.Cards) == 0 && len(failures) > 0 {
		return result, fmt.Errorf("no cards collected: %w", errors.Join(failures...))
	}

	status.SetState(RunWriting)
	if p.sink != nil {
		if err := p.sink.WriteCards(ctx, result.Cards); err != nil {
			return result, fmt.Errorf("failed to write cards: %w", err)
		}
		if err := p.sink.WritePrices(ctx, result.Prices); err != nil {
			return result, fmt.Errorf("failed to write prices: %w", err)
		}
	}

	log.Printf("CardPipeline: finished in %v", time.Since(started).Round(time.Second))
	logRunSummary("CardPipeline", result.Cards, result.TotalCount)
	if len(result.Unresolved) > 0 {
		log.Printf("CardPipeline: %d cards with unresolved species: %s", len(result.Unresolved), strings.Join(result.Unresolved, ", "))
	}
	if len(result.FailedPages) > 0 {
		log.Printf("CardPipeline: failed pages: %v", result.FailedPages)
	}
	return result, nil
}

// fetchBatch requests batchSize pages starting at first. Every page settles
// independently; results come back in page order.
func (p *CardPipeline) fetchBatch(ctx context.Context, first int) []pageResult {
	results := make([]pageResult, p.batchSize)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page := first + i
			start := time.Now()
			cp, err := p.api.FetchCards(ctx, PageParams{
				Query:    p.query,
				Select:   p.fields,
				OrderBy:  p.orderBy,
				Page:     page,
				PageSize: p.pageSize,
			})
			res := pageResult{page: page, err: err, elapsed: time.Since(start)}
			if err == nil {
				res.cards = cp.Cards
				res.total = cp.TotalCount
			}
			results[i] = res
		}(i)
	}
	wg.Wait()
	return results
}

// cardAggregate collects normalized cards in arrival order, keeping the first
// record for a repeated card code.
type cardAggregate struct {
	source     string
	logPrefix  string
	cards      []models.CanonicalCard
	prices     map[string]models.PriceRecord
	seen       map[string]bool
	duplicates int
	skipped    int
	unresolved []string
}

func newCardAggregate(source, logPrefix string) *cardAggregate {
	return &cardAggregate{
		source:    source,
		logPrefix: logPrefix,
		prices:    make(map[string]models.PriceRecord),
		seen:      make(map[string]bool),
	}
}

func (a *cardAggregate) add(nc *NormalizedCard, err error) {
	if err != nil {
		a.skipped++
		reason := "incomplete"
		if !errors.Is(err, ErrIncompleteRecord) {
			reason = "error"
		}
		metrics.CardsSkippedTotal.WithLabelValues(a.source, reason).Inc()
		log.Printf("%s: skipping card: %v", a.logPrefix, err)
		return
	}

	code := nc.Card.CardCode
	if a.seen[code] {
		a.duplicates++
		metrics.CardsSkippedTotal.WithLabelValues(a.source, "duplicate").Inc()
		log.Printf("%s: duplicate card code %s (%s), keeping first", a.logPrefix, code, nc.Card.Name)
		return
	}
	a.seen[code] = true
	a.cards = append(a.cards, nc.Card)
	if nc.Price != nil {
		price := *nc.Price
		price.CardCode = code
		a.prices[code] = price
	}
	if nc.Card.HasUnknownSpecies() {
		a.unresolved = append(a.unresolved, nc.Card.Name)
	}
}

// estimateRemaining projects the time left from the mean page latency,
// assuming batchSize pages are in flight at once.
func estimateRemaining(pageTimes []time.Duration, pagesLeft, batchSize int) time.Duration {
	if len(pageTimes) == 0 || pagesLeft <= 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range pageTimes {
		sum += d
	}
	mean := sum / time.Duration(len(pageTimes))
	batches := math.Ceil(float64(pagesLeft) / float64(max(batchSize, 1)))
	return time.Duration(batches * float64(mean))
}

func logMemoryUsage(prefix string) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return
	}
	log.Printf("%s: memory rss=%dMB vms=%dMB", prefix, mem.RSS/1_000_000, mem.VMS/1_000_000)
}

// logRunSummary logs a table of collected cards by supertype, with the share
// of the upstream total when it is known.
func logRunSummary(prefix string, cards []models.CanonicalCard, totalCount int) {
	bySupertype := make(map[models.Supertype]int)
	for _, c := range cards {
		bySupertype[c.Supertype]++
	}
	supertypes := make([]string, 0, len(bySupertype))
	for st := range bySupertype {
		supertypes = append(supertypes, string(st))
	}
	sort.Strings(supertypes)

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Supertype", "Cards"})
	for _, st := range supertypes {
		t.AppendRow(table.Row{st, bySupertype[models.Supertype(st)]})
	}
	footer := table.Row{"Total", len(cards)}
	if totalCount > 0 {
		footer = table.Row{"Total", fmt.Sprintf("%d / %d (%.1f%%)", len(cards), totalCount, 100*float64(len(cards))/float64(totalCount))}
	}
	t.AppendFooter(footer)

	for _, line := range strings.Split(t.Render(), "\n") {
		log.Printf("%s: %s", prefix, line)
	}
}
