package services

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

// Run kinds accepted by the Runner.
const (
	KindSets  = "sets"
	KindCards = "cards"
	KindJP    = "jp"
)

// Runner starts pipeline runs in the background through a RunRegistry. The set
// mapping from the latest sets run is kept for later card runs; before the
// first sets run it is rebuilt from the stored sets snapshot.
type Runner struct {
	cards     *CardPipeline
	jp        *JPPipeline
	registry  *RunRegistry
	snapshots *SnapshotSource

	mu      sync.RWMutex
	mapping *models.SetMapping
}

// NewRunner builds a Runner. snapshots may be nil when no earlier output exists.
func NewRunner(cards *CardPipeline, jp *JPPipeline, registry *RunRegistry, snapshots *SnapshotSource) *Runner {
	return &Runner{
		cards:     cards,
		jp:        jp,
		registry:  registry,
		snapshots: snapshots,
	}
}

func (r *Runner) Registry() *RunRegistry {
	return r.registry
}

// pipelineFor returns the card pipeline to use for a run, with apiKey
// replacing the configured key when set.
func (r *Runner) pipelineFor(apiKey string) (*CardPipeline, error) {
	p := r.cards
	if apiKey != "" {
		p = p.WithAPIKey(apiKey)
	}
	if !p.HasCredential() {
		return nil, ErrMissingCredential
	}
	return p, nil
}

func (r *Runner) StartSets(apiKey string) (*RunStatus, error) {
	p, err := r.pipelineFor(apiKey)
	if err != nil {
		return nil, err
	}
	return r.registry.Start(KindSets, func(ctx context.Context, status *RunStatus) error {
		result, err := p.RunSets(ctx, status)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.mapping = result.Mapping
		r.mu.Unlock()
		return nil
	})
}

func (r *Runner) StartCards(apiKey string) (*RunStatus, error) {
	p, err := r.pipelineFor(apiKey)
	if err != nil {
		return nil, err
	}
	return r.registry.Start(KindCards, func(ctx context.Context, status *RunStatus) error {
		_, err := p.RunCards(ctx, r.Mapping(ctx), status)
		return err
	})
}

func (r *Runner) StartJP(q JPQuery) (*RunStatus, error) {
	if r.jp == nil {
		return nil, errors.New("japanese scraper is not configured")
	}
	return r.registry.Start(KindJP, func(ctx context.Context, status *RunStatus) error {
		_, err := r.jp.Run(ctx, q, r.Mapping(ctx), status)
		return err
	})
}

// Mapping returns the current set mapping, loading it from the sets snapshot
// when no sets run has finished yet.
func (r *Runner) Mapping(ctx context.Context) *models.SetMapping {
	r.mu.RLock()
	m := r.mapping
	r.mu.RUnlock()
	if m != nil {
		return m
	}

	m = models.NewSetMapping()
	if r.snapshots != nil {
		sets, err := r.snapshots.Sets(ctx)
		switch {
		case err == nil:
			m = models.MappingFromSets(sets)
			log.Printf("Runner: loaded set mapping from %s (%d sets)", r.snapshots.Location(), len(sets))
		case IsSnapshotMissing(err):
			log.Printf("Runner: no sets snapshot in %s, cards keep their upstream sets", r.snapshots.Location())
		default:
			// Not cached, so the next run retries the load.
			log.Printf("Runner: failed to load sets snapshot: %v", err)
			return m
		}
	}

	r.mu.Lock()
	if r.mapping == nil {
		r.mapping = m
	}
	m = r.mapping
	r.mu.Unlock()
	return m
}
