package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/metrics"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

const (
	endpointCards = "cards"
	endpointSets  = "sets"

	setsPageSize = 250
)

// PokemonTCGService fetches cards and sets from the Pokémon TCG REST API.
// A service value is immutable; WithAPIKey returns a copy for per-request credentials.
type PokemonTCGService struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	retry   RetryPolicy
}

func NewPokemonTCGService(cfg config.APIConfig) *PokemonTCGService {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &PokemonTCGService{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(limit, 1),
		retry:   RetryPolicyFromConfig(cfg),
	}
}

// WithAPIKey returns a copy of the service that authenticates with key.
// The copy shares the HTTP client and the rate limiter.
func (s *PokemonTCGService) WithAPIKey(key string) *PokemonTCGService {
	clone := *s
	clone.apiKey = key
	return &clone
}

func (s *PokemonTCGService) HasCredential() bool {
	return s.apiKey != ""
}

// PageParams are the query parameters accepted by the list endpoints.
type PageParams struct {
	Query    string
	Select   string
	OrderBy  string
	Page     int
	PageSize int
}

func (p PageParams) values() url.Values {
	v := url.Values{}
	if p.Query != "" {
		v.Set("q", p.Query)
	}
	if p.Select != "" {
		v.Set("select", p.Select)
	}
	if p.OrderBy != "" {
		v.Set("orderBy", p.OrderBy)
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	return v
}

// RawPage is one undecoded page from a list endpoint.
type RawPage struct {
	Data       json.RawMessage `json:"data"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	Count      int             `json:"count"`
	TotalCount int             `json:"totalCount"`
}

type CardPage struct {
	Cards      []models.RawAPICard
	Page       int
	TotalCount int
}

// FetchPage requests one page of endpoint, retrying rate limits and other
// non-2xx responses with backoff. ErrMissingCredential is returned without
// touching the network.
func (s *PokemonTCGService) FetchPage(ctx context.Context, endpoint string, params PageParams) (*RawPage, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("fetch %s page %d: %w", endpoint, params.Page, ErrMissingCredential)
	}

	reqURL := fmt.Sprintf("%s/%s", s.baseURL, strings.TrimLeft(endpoint, "/"))
	if q := params.values().Encode(); q != "" {
		reqURL += "?" + q
	}

	ctx, span := tracer.Start(ctx, "pokemontcg.FetchPage", trace.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Int("page", params.Page),
	))
	page, err := Retry(ctx, s.retry, fmt.Sprintf("%s page %d", endpoint, params.Page), func(ctx context.Context) (*RawPage, error) {
		return s.doFetch(ctx, endpoint, reqURL)
	})
	endSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page %d: %w", endpoint, params.Page, err)
	}
	return page, nil
}

func (s *PokemonTCGService) doFetch(ctx context.Context, endpoint, reqURL string) (*RawPage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("X-Api-Key", s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("pokemon tcg request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: endpoint, Body: truncateBody(body)}
	}

	var page RawPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, Permanent(fmt.Errorf("failed to decode pokemon tcg response: %w", err))
	}
	return &page, nil
}

// FetchCards fetches and decodes one page of cards.
func (s *PokemonTCGService) FetchCards(ctx context.Context, params PageParams) (*CardPage, error) {
	raw, err := s.FetchPage(ctx, endpointCards, params)
	if err != nil {
		return nil, err
	}

	var cards []models.RawAPICard
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, &cards); err != nil {
			return nil, fmt.Errorf("failed to decode cards page %d: %w", params.Page, err)
		}
	}

	return &CardPage{
		Cards:      cards,
		Page:       params.Page,
		TotalCount: raw.TotalCount,
	}, nil
}

// FetchAllSets pages through the sets endpoint until totalCount sets are collected.
func (s *PokemonTCGService) FetchAllSets(ctx context.Context) ([]models.RawAPISet, error) {
	var all []models.RawAPISet
	for page := 1; ; page++ {
		raw, err := s.FetchPage(ctx, endpointSets, PageParams{
			Page:     page,
			PageSize: setsPageSize,
			OrderBy:  "releaseDate",
		})
		if err != nil {
			return nil, err
		}

		var sets []models.RawAPISet
		if len(raw.Data) > 0 {
			if err := json.Unmarshal(raw.Data, &sets); err != nil {
				return nil, fmt.Errorf("failed to decode sets page %d: %w", page, err)
			}
		}
		all = append(all, sets...)

		if len(sets) < setsPageSize || len(all) >= raw.TotalCount {
			break
		}
	}
	return all, nil
}
