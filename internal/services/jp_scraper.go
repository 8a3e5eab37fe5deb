package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/metrics"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

// Markup of the Japanese card listing site.
const (
	jpPaginationSelector = ".pagination a"
	jpResultsSelector    = ".results-summary"
	jpCardLinkSelector   = ".card-list a[href]"
	jpCardNameSelector   = "h1.card-name"
	jpCardImageSelector  = "img.card-image"
	jpDetailRowSelector  = "table.card-details tr"
	jpSetCodeSelector    = ".set-code"
)

var jpItemCountPattern = regexp.MustCompile(`(?i)of\s+([\d,]+)\s+items?`)

// JPQuery selects a listing on the Japanese card site. Zero fields use the
// scraper's configured defaults.
type JPQuery struct {
	Keyword  string `json:"keyword,omitempty"`
	Sort     string `json:"sort,omitempty"`
	Display  string `json:"display,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
}

// JPScraperService scrapes card listings and card detail pages from the
// Japanese card site.
type JPScraperService struct {
	http       *resty.Client
	baseURL    *url.URL
	listPath   string
	defaults   JPQuery
	workers    int
	chunkDelay time.Duration
	retry      RetryPolicy
}

func NewJPScraperService(cfg config.ScraperConfig, retry RetryPolicy) (*JPScraperService, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid scraper base url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	client.SetHeader("Accept-Language", "ja,en;q=0.8")
	client.SetTimeout(timeout)

	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 60
	}
	listPath := cfg.ListPath
	if listPath == "" {
		listPath = "/cards/jp"
	}

	return &JPScraperService{
		http:     client,
		baseURL:  base,
		listPath: listPath,
		defaults: JPQuery{
			Sort:     cfg.Sort,
			Display:  cfg.Display,
			PageSize: pageSize,
		},
		workers:    workers,
		chunkDelay: cfg.ChunkDelay.Std(),
		retry:      retry,
	}, nil
}

func (s *JPScraperService) withDefaults(q JPQuery) JPQuery {
	if q.Sort == "" {
		q.Sort = s.defaults.Sort
	}
	if q.Display == "" {
		q.Display = s.defaults.Display
	}
	if q.PageSize <= 0 {
		q.PageSize = s.defaults.PageSize
	}
	return q
}

func (q JPQuery) params(page int) map[string]string {
	p := map[string]string{
		"page":     strconv.Itoa(page),
		"per_page": strconv.Itoa(q.PageSize),
	}
	if q.Sort != "" {
		p["sort"] = q.Sort
	}
	if q.Display != "" {
		p["display"] = q.Display
	}
	if q.Keyword != "" {
		p["q"] = q.Keyword
	}
	return p
}

func (s *JPScraperService) fetchDocument(ctx context.Context, target string, params map[string]string) (*goquery.Document, error) {
	return Retry(ctx, s.retry, "GET "+target, func(ctx context.Context) (*goquery.Document, error) {
		res, err := s.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(target)
		if err != nil {
			return nil, fmt.Errorf("request %s failed: %w", target, err)
		}
		if res.IsError() {
			metrics.PagesFetchedTotal.WithLabelValues("jp", "error").Inc()
			httpErr := &HTTPError{StatusCode: res.StatusCode(), URL: target, Body: truncateBody(res.Body())}
			if res.StatusCode() == http.StatusNotFound || res.StatusCode() == http.StatusGone {
				return nil, Permanent(httpErr)
			}
			return nil, httpErr
		}

		metrics.PagesFetchedTotal.WithLabelValues("jp", "ok").Inc()

		doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
		if err != nil {
			return nil, Permanent(&ParseFailure{URL: target, Reason: err.Error()})
		}
		return doc, nil
	})
}

// ListPages returns how many listing pages q spans. The pagination control is
// read first, then an "of N items" summary; a listing with neither is one page.
func (s *JPScraperService) ListPages(ctx context.Context, q JPQuery) (int, error) {
	q = s.withDefaults(q)
	doc, err := s.fetchDocument(ctx, s.listPath, q.params(1))
	if err != nil {
		return 0, fmt.Errorf("list pages: %w", err)
	}
	return pageCount(doc, q.PageSize), nil
}

func pageCount(doc *goquery.Document, pageSize int) int {
	maxPage := 0
	doc.Find(jpPaginationSelector).Each(func(_ int, sel *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(sel.Text())); err == nil && n > maxPage {
			maxPage = n
		}
		if href, ok := sel.Attr("href"); ok {
			if u, err := url.Parse(href); err == nil {
				if n, err := strconv.Atoi(u.Query().Get("page")); err == nil && n > maxPage {
					maxPage = n
				}
			}
		}
	})
	if maxPage > 0 {
		return maxPage
	}

	summary := doc.Find(jpResultsSelector).Text()
	if summary == "" {
		summary = doc.Text()
	}
	if m := jpItemCountPattern.FindStringSubmatch(summary); m != nil && pageSize > 0 {
		if total, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil && total > 0 {
			return int(math.Ceil(float64(total) / float64(pageSize)))
		}
	}
	return 1
}

// ListCardURLs returns the absolute card detail URLs on one listing page, in page order.
func (s *JPScraperService) ListCardURLs(ctx context.Context, q JPQuery, page int) ([]string, error) {
	q = s.withDefaults(q)
	doc, err := s.fetchDocument(ctx, s.listPath, q.params(page))
	if err != nil {
		return nil, fmt.Errorf("list cards page %d: %w", page, err)
	}

	seen := make(map[string]bool)
	var urls []string
	doc.Find(jpCardLinkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs := s.resolve(href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		urls = append(urls, abs)
	})
	return urls, nil
}

func (s *JPScraperService) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return s.baseURL.ResolveReference(ref).String()
}

// ScrapeCard fetches and parses one card detail page. Markup problems are
// reported as *ParseFailure.
func (s *JPScraperService) ScrapeCard(ctx context.Context, cardURL string) (*models.RawHTMLCard, error) {
	ctx, span := tracer.Start(ctx, "jp.ScrapeCard", trace.WithAttributes(attribute.String("url", cardURL)))
	doc, err := s.fetchDocument(ctx, cardURL, nil)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	card, err := s.parseCard(cardURL, doc)
	endSpan(span, err)
	return card, err
}

func (s *JPScraperService) parseCard(cardURL string, doc *goquery.Document) (*models.RawHTMLCard, error) {
	name := strings.TrimSpace(doc.Find(jpCardNameSelector).First().Text())
	if name == "" {
		return nil, &ParseFailure{URL: cardURL, Reason: "missing card name"}
	}

	rows := doc.Find(jpDetailRowSelector)
	if rows.Length() == 0 {
		return nil, &ParseFailure{URL: cardURL, Reason: "missing card details table"}
	}

	card := &models.RawHTMLCard{
		URL:  cardURL,
		Name: name,
	}
	if src, ok := doc.Find(jpCardImageSelector).First().Attr("src"); ok {
		card.ImageURL = s.resolve(src)
	}

	rows.Each(func(_ int, row *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(row.Find("th").First().Text()))
		cell := row.Find("td").First()
		text := strings.Join(strings.Fields(cell.Text()), " ")

		switch label {
		case "card type", "カードの種類":
			card.CardType = text
		case "type", "タイプ":
			// Energy symbols are images; the title carries the type name
			var types []string
			cell.Find("img[title]").Each(func(_ int, img *goquery.Selection) {
				types = append(types, strings.TrimSpace(img.AttrOr("title", "")))
			})
			if len(types) > 0 {
				card.PokemonType = strings.Join(types, ",")
			} else {
				card.PokemonType = text
			}
		case "set", "expansion", "収録弾":
			card.SetName = strings.TrimSpace(cell.Find("a").First().Text())
			if card.SetName == "" {
				card.SetName = text
			}
			if code := strings.TrimSpace(cell.Find(jpSetCodeSelector).Text()); code != "" {
				card.SetCode = code
				card.SetName = strings.TrimSpace(strings.TrimSuffix(card.SetName, code))
			}
		case "set code", "code":
			card.SetCode = text
		case "number", "card number", "カード番号":
			card.CardNumber = text
		case "rarity", "レアリティ":
			card.Rarity = text
		case "illustrator", "artist", "イラストレーター":
			card.Illustrator = text
		case "price", "価格":
			card.Price = text
		}
	})

	if card.CardNumber == "" {
		return nil, &ParseFailure{URL: cardURL, Reason: "missing card number"}
	}
	return card, nil
}

// ScrapePage scrapes urls in chunks of the worker count, pausing between
// chunks. Cards come back in url order; failed urls are returned separately
// and never abort the page.
func (s *JPScraperService) ScrapePage(ctx context.Context, urls []string) ([]models.RawHTMLCard, []models.ScrapeFailure) {
	results := make([]*models.RawHTMLCard, len(urls))
	errs := make([]error, len(urls))

	for start := 0; start < len(urls); start += s.workers {
		end := min(start+s.workers, len(urls))

		var g errgroup.Group
		g.SetLimit(s.workers)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i], errs[i] = s.ScrapeCard(ctx, urls[i])
				return nil
			})
		}
		_ = g.Wait()

		if end < len(urls) && s.chunkDelay > 0 {
			if err := sleepContext(ctx, s.chunkDelay); err != nil {
				for i := end; i < len(urls); i++ {
					errs[i] = err
				}
				break
			}
		}
	}

	var cards []models.RawHTMLCard
	var failures []models.ScrapeFailure
	for i, u := range urls {
		switch {
		case errs[i] != nil:
			failures = append(failures, models.ScrapeFailure{URL: u, Reason: errs[i].Error()})
			metrics.ScrapeFailuresTotal.Inc()
			log.Printf("JPScraper: failed to scrape %s: %v", u, errs[i])
		case results[i] != nil:
			cards = append(cards, *results[i])
		}
	}
	return cards, failures
}
