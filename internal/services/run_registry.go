package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/metrics"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

// RunState is the position of a run in its state machine.
type RunState string

const (
	RunPending           RunState = "PENDING"
	RunFetchingPageBatch RunState = "FETCHING_PAGE_BATCH"
	RunAggregating       RunState = "AGGREGATING"
	RunWriting           RunState = "WRITING"
	RunDone              RunState = "DONE"
	RunFailed            RunState = "FAILED"
)

// RunStatus tracks one pipeline run. All methods are safe for concurrent use
// and a nil *RunStatus ignores updates.
type RunStatus struct {
	mu   sync.RWMutex
	view RunView
}

// RunView is a point-in-time copy of a RunStatus.
type RunView struct {
	ID             string                 `json:"id"`
	Kind           string                 `json:"kind"`
	State          RunState               `json:"state"`
	StartedAt      time.Time              `json:"startedAt"`
	FinishedAt     *time.Time             `json:"finishedAt,omitempty"`
	PagesDone      int                    `json:"pagesDone"`
	PagesTotal     int                    `json:"pagesTotal"`
	CardsCollected int                    `json:"cardsCollected"`
	ETASeconds     float64                `json:"etaSeconds"`
	Failures       []models.ScrapeFailure `json:"failures,omitempty"`
	Unresolved     []string               `json:"unresolved,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

func NewRunStatus(kind string) *RunStatus {
	return &RunStatus{view: RunView{
		ID:        uuid.New().String(),
		Kind:      kind,
		State:     RunPending,
		StartedAt: time.Now(),
	}}
}

func (r *RunStatus) update(fn func(v *RunView)) {
	if r == nil {
		return
	}
	r.mu.Lock()
	fn(&r.view)
	r.mu.Unlock()
}

func (r *RunStatus) SetState(state RunState) {
	r.update(func(v *RunView) { v.State = state })
}

func (r *RunStatus) SetPagesTotal(total int) {
	r.update(func(v *RunView) { v.PagesTotal = total })
}

func (r *RunStatus) Progress(pagesDone, cards int, eta time.Duration) {
	r.update(func(v *RunView) {
		v.PagesDone = pagesDone
		v.CardsCollected = cards
		v.ETASeconds = eta.Seconds()
	})
}

func (r *RunStatus) AddFailures(failures ...models.ScrapeFailure) {
	r.update(func(v *RunView) { v.Failures = append(v.Failures, failures...) })
}

func (r *RunStatus) AddUnresolved(names ...string) {
	r.update(func(v *RunView) { v.Unresolved = append(v.Unresolved, names...) })
}

func (r *RunStatus) finish(err error) {
	r.update(func(v *RunView) {
		now := time.Now()
		v.FinishedAt = &now
		v.ETASeconds = 0
		if err != nil {
			v.State = RunFailed
			v.Error = err.Error()
			return
		}
		v.State = RunDone
	})
}

// View returns a copy safe to serialize while the run continues.
func (r *RunStatus) View() RunView {
	if r == nil {
		return RunView{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v := r.view
	v.Failures = append([]models.ScrapeFailure(nil), r.view.Failures...)
	v.Unresolved = append([]string(nil), r.view.Unresolved...)
	return v
}

// RunFunc is the body of a run started through a RunRegistry.
type RunFunc func(ctx context.Context, status *RunStatus) error

// RunRegistry starts runs in the background and remembers the most recent ones.
// Runs outlive the request that started them and are cancelled by Shutdown.
type RunRegistry struct {
	runs   *lru.Cache[string, *RunStatus]
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]string // kind -> run id
}

func NewRunRegistry(size int) (*RunRegistry, error) {
	if size <= 0 {
		size = 100
	}
	cache, err := lru.New[string, *RunStatus](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create run cache: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunRegistry{
		runs:   cache,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]string),
	}, nil
}

// RunActiveError is returned by Start while a run of the same kind is in progress.
type RunActiveError struct {
	Kind  string
	RunID string
}

func (e *RunActiveError) Error() string {
	return fmt.Sprintf("a %s run is already in progress (%s)", e.Kind, e.RunID)
}

// Start launches fn in a goroutine. Only one run per kind may be active.
func (r *RunRegistry) Start(kind string, fn RunFunc) (*RunStatus, error) {
	r.mu.Lock()
	if id, ok := r.active[kind]; ok {
		r.mu.Unlock()
		return nil, &RunActiveError{Kind: kind, RunID: id}
	}
	status := NewRunStatus(kind)
	id := status.View().ID
	r.active[kind] = id
	r.mu.Unlock()

	r.runs.Add(id, status)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.active, kind)
			r.mu.Unlock()
		}()

		log.Printf("RunRegistry: starting %s run %s", kind, id)
		err := fn(r.ctx, status)
		status.finish(err)

		result := "success"
		if err != nil {
			result = "error"
			log.Printf("RunRegistry: %s run %s failed: %v", kind, id, err)
		} else {
			log.Printf("RunRegistry: %s run %s finished", kind, id)
		}
		metrics.RunsTotal.WithLabelValues(kind, result).Inc()
	}()
	return status, nil
}

func (r *RunRegistry) Get(id string) (*RunStatus, bool) {
	return r.runs.Get(id)
}

// List returns every remembered run, newest first.
func (r *RunRegistry) List() []RunView {
	views := make([]RunView, 0, r.runs.Len())
	for _, s := range r.runs.Values() {
		views = append(views, s.View())
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].StartedAt.After(views[j].StartedAt)
	})
	return views
}

// Wait blocks until every started run has returned.
func (r *RunRegistry) Wait() {
	r.wg.Wait()
}

// Shutdown cancels every active run and waits for them to return.
func (r *RunRegistry) Shutdown() {
	r.cancel()
	r.wg.Wait()
}
