// Package metrics provides Prometheus metrics for the card sync pipelines.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardsync_http_requests_total",
			Help: "Total number of HTTP requests served by the trigger server",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardsync_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Upstream API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardsync_api_requests_total",
			Help: "Requests made to the card REST API",
		},
		[]string{"endpoint", "status"}, // status: HTTP code or "error"
	)

	APIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardsync_api_retries_total",
			Help: "Retries scheduled after a failed upstream call",
		},
		[]string{"reason"}, // "rate_limited", "http", "network"
	)

	// Pipeline Metrics
	PagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardsync_pages_fetched_total",
			Help: "Listing pages fetched by source and result",
		},
		[]string{"source", "result"}, // source: "api" or "jp"
	)

	CardsNormalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardsync_cards_normalized_total",
			Help: "Canonical cards produced by source and supertype",
		},
		[]string{"source", "supertype"},
	)

	CardsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardsync_cards_skipped_total",
			Help: "Raw records skipped during normalization",
		},
		[]string{"source", "reason"}, // "incomplete", "duplicate"
	)

	ScrapeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardsync_scrape_failures_total",
			Help: "Card detail pages that could not be scraped",
		},
	)

	UnresolvedSpeciesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardsync_unresolved_species_total",
			Help: "Pokémon cards stored with the unknown species sentinel",
		},
	)

	UnmappedSetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardsync_unmapped_sets_total",
			Help: "Obsolete set names left unmapped by the reconciler",
		},
	)

	SetsMergedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardsync_sets_merged_total",
			Help: "Sets folded into a primary set by strategy",
		},
		[]string{"strategy"}, // "alias", "code", "pattern", "substring", "table", "fuzzy"
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardsync_batch_duration_seconds",
			Help:    "Time taken to fetch one batch of listing pages",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"source"},
	)

	RunETASeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardsync_run_eta_seconds",
			Help: "Estimated seconds remaining for the active run",
		},
		[]string{"source"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardsync_runs_total",
			Help: "Pipeline runs by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	// Resolver Metrics
	ResolverCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardsync_resolver_cache_hits_total",
			Help: "Name resolver memo hits",
		},
	)

	ResolverCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardsync_resolver_cache_misses_total",
			Help: "Name resolver memo misses",
		},
	)
)
