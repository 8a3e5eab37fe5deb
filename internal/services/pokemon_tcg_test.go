package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

const testAPIKey = "test-key"

// fakeCardAPI serves the cards and sets endpoints from memory.
type fakeCardAPI struct {
	cards []models.RawAPICard
	sets  []models.RawAPISet

	mu          sync.Mutex
	failPages   map[int]bool
	rateLimited map[int]int // page -> number of 429s left
	queries     []string

	requests atomic.Int32
}

func (f *fakeCardAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cards", func(w http.ResponseWriter, r *http.Request) {
		serveFakePage(f, w, r, f.cards)
	})
	mux.HandleFunc("/sets", func(w http.ResponseWriter, r *http.Request) {
		serveFakePage(f, w, r, f.sets)
	})
	return mux
}

func serveFakePage[T any](f *fakeCardAPI, w http.ResponseWriter, r *http.Request, all []T) {
	f.requests.Add(1)
	if r.Header.Get("X-Api-Key") != testAPIKey {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 250
	}

	f.mu.Lock()
	f.queries = append(f.queries, r.URL.RawQuery)
	fail := f.failPages[page]
	limited := f.rateLimited[page] > 0
	if limited {
		f.rateLimited[page]--
	}
	f.mu.Unlock()

	if limited {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	start := min((page-1)*pageSize, len(all))
	end := min(start+pageSize, len(all))
	data := all[start:end]
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":       data,
		"page":       page,
		"pageSize":   pageSize,
		"count":      len(data),
		"totalCount": len(all),
	})
}

func testAPIConfig(baseURL string) config.APIConfig {
	cfg := config.Default().API
	cfg.BaseURL = baseURL
	cfg.APIKey = testAPIKey
	cfg.RequestsPerSecond = 0
	cfg.MaxAttempts = 3
	cfg.BaseDelay = config.Duration(time.Millisecond)
	cfg.Timeout = config.Duration(2 * time.Second)
	return cfg
}

func fakeAPICard(number int) models.RawAPICard {
	return models.RawAPICard{
		ID:                     fmt.Sprintf("base1-%d", number),
		Name:                   "Pikachu",
		Supertype:              "Pokémon",
		Number:                 strconv.Itoa(number),
		NationalPokedexNumbers: []int{25},
		Set:                    models.RawSetRef{Name: "Base"},
		Images: models.RawImages{
			Small: fmt.Sprintf("https://images.pokemontcg.io/base1/%d.png", number),
			Large: fmt.Sprintf("https://images.pokemontcg.io/base1/%d_hires.png", number),
		},
	}
}

func TestFetchCardsSendsKeyAndParams(t *testing.T) {
	api := &fakeCardAPI{cards: []models.RawAPICard{fakeAPICard(1), fakeAPICard(2)}}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	svc := NewPokemonTCGService(testAPIConfig(srv.URL))
	page, err := svc.FetchCards(context.Background(), PageParams{
		Query:    "set.id:base1",
		Select:   "id,name",
		OrderBy:  "number",
		Page:     1,
		PageSize: 250,
	})
	require.NoError(t, err)
	require.Len(t, page.Cards, 2)
	require.Equal(t, 2, page.TotalCount)
	require.Equal(t, "Pikachu", page.Cards[0].Name)
	require.Equal(t, []string{"orderBy=number&page=1&pageSize=250&q=set.id%3Abase1&select=id%2Cname"}, api.queries)
}

func TestFetchPageRetriesRateLimit(t *testing.T) {
	api := &fakeCardAPI{
		cards:       []models.RawAPICard{fakeAPICard(1)},
		rateLimited: map[int]int{1: 2},
	}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	page, err := NewPokemonTCGService(testAPIConfig(srv.URL)).FetchCards(context.Background(), PageParams{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Cards, 1)
	require.Equal(t, int32(3), api.requests.Load())
}

func TestFetchPageExhaustsRetries(t *testing.T) {
	api := &fakeCardAPI{rateLimited: map[int]int{1: 10}}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	_, err := NewPokemonTCGService(testAPIConfig(srv.URL)).FetchCards(context.Background(), PageParams{Page: 1, PageSize: 10})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRateLimited))
	require.Equal(t, int32(3), api.requests.Load())
}

func TestFetchPageMissingCredential(t *testing.T) {
	api := &fakeCardAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	cfg := testAPIConfig(srv.URL)
	cfg.APIKey = ""
	svc := NewPokemonTCGService(cfg)
	require.False(t, svc.HasCredential())

	_, err := svc.FetchCards(context.Background(), PageParams{Page: 1})
	require.ErrorIs(t, err, ErrMissingCredential)
	require.Zero(t, api.requests.Load())

	// A per-run key fixes it without touching the shared service
	_, err = svc.WithAPIKey(testAPIKey).FetchCards(context.Background(), PageParams{Page: 1})
	require.NoError(t, err)
	require.False(t, svc.HasCredential())
}

func TestFetchPageBadJSONNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := NewPokemonTCGService(testAPIConfig(srv.URL)).FetchPage(context.Background(), endpointCards, PageParams{Page: 1})
	require.Error(t, err)
	require.Equal(t, int32(1), hits.Load())
}

func TestFetchAllSetsPaginates(t *testing.T) {
	api := &fakeCardAPI{}
	for i := 0; i < 300; i++ {
		api.sets = append(api.sets, rawSet(fmt.Sprintf("s%d", i), fmt.Sprintf("Set %d", i), "", 10))
	}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	sets, err := NewPokemonTCGService(testAPIConfig(srv.URL)).FetchAllSets(context.Background())
	require.NoError(t, err)
	require.Len(t, sets, 300)
	require.Equal(t, "Set 299", sets[299].Name)
	require.Equal(t, int32(2), api.requests.Load())
}
