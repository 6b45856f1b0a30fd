package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/metrics"
)

const (
	DefaultMaxResults           = 10
	defaultPageFetchConcurrency = 4
	// truncation happens after merging, so each variant asks for a full page
	webResultsPerQuery = 10
)

// Hosts whose results are never product listings
var nonCommerceHosts = []string{
	"wikipedia.", "reddit.", "youtube.", "facebook.", "twitter.", "instagram.", "pinterest.", "tiktok.",
}

var shoppingIntentMarkers = []string{
	"price", "buy", "£", "$", "€", "add to basket", "add to cart", "in stock", "sale",
}

var shoppingAmountRegex = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

var retailerTLDRegex = regexp.MustCompile(`\.(?:com|co\.uk|org\.uk|uk|ca|com\.au|au|de|fr|ie|net|org)$`)

// PagePriceSource reads a price from a product page
type PagePriceSource interface {
	FetchPriceFromPage(ctx context.Context, pageURL string) *domain.Price
}

// PriceSearchConfig tunes the price search
type PriceSearchConfig struct {
	// MinRelevance drops web listings whose title scores below it (0-100); zero disables the filter
	MinRelevance         float64
	PageFetchConcurrency int
}

// searchStrategy is one provider in the ordered fallback chain
type searchStrategy struct {
	provider domain.SearchProvider
	enabled  func(domain.SearchConfig) bool
	run      func(ctx context.Context, query string, cfg domain.SearchConfig, limit int) ([]domain.PriceQuote, error)
}

// PriceSearchService finds retailer price quotes for a product query
type PriceSearchService struct {
	shopping   domain.ShoppingSearcher
	web        domain.WebSearcher
	pagePrices PagePriceSource
	matcher    *ListingMatcher
	config     PriceSearchConfig
	strategies []searchStrategy
	log        logger.Logger
}

// NewPriceSearchService wires the shopping and web strategies
func NewPriceSearchService(
	shopping domain.ShoppingSearcher,
	web domain.WebSearcher,
	pagePrices PagePriceSource,
	config PriceSearchConfig,
	log logger.Logger,
) *PriceSearchService {
	if config.PageFetchConcurrency <= 0 {
		config.PageFetchConcurrency = defaultPageFetchConcurrency
	}

	s := &PriceSearchService{
		shopping:   shopping,
		web:        web,
		pagePrices: pagePrices,
		matcher:    NewListingMatcher(MatchConfig{EnableFuzzyMatching: true}),
		config:     config,
		log:        log,
	}
	s.strategies = []searchStrategy{
		{provider: domain.SearchProviderSerpAPI, enabled: domain.SearchConfig.ShoppingConfigured, run: s.searchShopping},
		{provider: domain.SearchProviderGoogle, enabled: domain.SearchConfig.WebConfigured, run: s.searchWeb},
	}
	return s
}

// SearchPrices returns up to maxResults plausible quotes sorted by ascending price.
// It fails with domain.ErrNotConfigured when no provider has credentials, and with
// domain.ErrProviderUnavailable (plus an empty slice) when every provider failed.
func (s *PriceSearchService) SearchPrices(ctx context.Context, query string, cfg domain.SearchConfig, maxResults int) ([]domain.PriceQuote, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrInvalidRequest
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	attempted, failed := 0, 0
	var lastErr error

	for _, strategy := range s.strategies {
		if !strategy.enabled(cfg) {
			continue
		}
		attempted++

		quotes, err := strategy.run(ctx, query, cfg, maxResults)
		if err != nil {
			failed++
			lastErr = err
			s.log.Warn("price search provider failed",
				logger.String("provider", string(strategy.provider)),
				logger.String("query", query),
				logger.Err(err))
			continue
		}

		quotes = finalizeQuotes(quotes, maxResults)
		if len(quotes) > 0 {
			metrics.ObserveExtraction("price_search", metrics.OutcomeSuccess)
			s.log.Info("price search complete",
				logger.String("provider", string(strategy.provider)),
				logger.Int("quotes", len(quotes)))
			return quotes, nil
		}
	}

	switch {
	case attempted == 0:
		metrics.ObserveExtraction("price_search", metrics.OutcomeSkipped)
		return nil, domain.ErrNotConfigured
	case failed == attempted:
		metrics.ObserveExtraction("price_search", metrics.OutcomeError)
		return []domain.PriceQuote{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, lastErr)
	default:
		metrics.ObserveExtraction("price_search", metrics.OutcomeEmpty)
		return []domain.PriceQuote{}, nil
	}
}

func (s *PriceSearchService) searchShopping(ctx context.Context, query string, cfg domain.SearchConfig, limit int) ([]domain.PriceQuote, error) {
	results, err := s.shopping.SearchShopping(ctx, cfg, query, limit)
	if err != nil {
		return nil, err
	}

	quotes := make([]domain.PriceQuote, 0, len(results))
	for _, r := range results {
		if r.Link == "" {
			continue
		}
		price := parseShoppingPrice(r.Price, r.Currency, cfg.DefaultCurrency)
		if price == nil {
			continue
		}

		retailer := strings.TrimSpace(r.Source)
		if retailer == "" {
			retailer = "Unknown"
		}

		quotes = append(quotes, domain.PriceQuote{
			Retailer:     retailer,
			Price:        price.Amount,
			Currency:     price.Currency,
			ProductURL:   r.Link,
			ProductTitle: r.Title,
			ImageURL:     r.Thumbnail,
			InStock:      r.InStock == nil || *r.InStock,
		})
	}

	return quotes, nil
}

// parseShoppingPrice reads a provider price string such as "£1,299.00". The first
// amount is the price; anything after it (delivery, "was" prices) is ignored.
// Currency comes from the first symbol, else the provider's code, else the default.
func parseShoppingPrice(raw, currency, defaultCurrency string) *domain.Price {
	amountStr := shoppingAmountRegex.FindString(raw)
	if amountStr == "" {
		return nil
	}
	amount, err := parseAmount(amountStr)
	if err != nil || !domain.IsPlausiblePrice(amount) {
		return nil
	}

	code := ""
	if i := strings.IndexAny(raw, "£€$"); i >= 0 {
		symbol, _ := utf8.DecodeRuneInString(raw[i:])
		code = currencyFromToken(string(symbol))
	}
	if code == "" && len(strings.TrimSpace(currency)) == 3 {
		code = strings.ToUpper(strings.TrimSpace(currency))
	}
	if code == "" {
		code = defaultCurrency
	}
	if code == "" {
		code = DefaultCurrency
	}

	return &domain.Price{Amount: domain.RoundPrice(amount), Currency: code}
}

// queryVariants are issued concurrently against the web provider
func queryVariants(query string) []string {
	return []string{query, query + " buy price"}
}

func (s *PriceSearchService) searchWeb(ctx context.Context, query string, cfg domain.SearchConfig, _ int) ([]domain.PriceQuote, error) {
	variants := queryVariants(query)
	results := make([][]domain.WebResult, len(variants))
	errs := make([]error, len(variants))

	// variant failures are recorded, not returned, so one failure does not cancel the other
	var g errgroup.Group
	for i, variant := range variants {
		g.Go(func() error {
			results[i], errs[i] = s.web.SearchWeb(ctx, cfg, variant, webResultsPerQuery)
			if errs[i] != nil {
				s.log.Warn("web search variant failed",
					logger.String("variant", variant),
					logger.Err(errs[i]))
			}
			return nil
		})
	}
	_ = g.Wait()

	if allFailed(errs) {
		return nil, errors.Join(errs...)
	}

	candidates := s.mergeCandidates(query, results)
	prices := make([]*domain.Price, len(candidates))

	pages, pageCtx := errgroup.WithContext(ctx)
	pages.SetLimit(s.config.PageFetchConcurrency)

	for i, c := range candidates {
		prices[i] = ExtractPrice(c.Title+" "+c.Snippet, cfg.DefaultCurrency)
		if prices[i] != nil || s.pagePrices == nil || !hasShoppingIntent(c.Title+" "+c.Snippet) {
			continue
		}
		pages.Go(func() error {
			prices[i] = s.pagePrices.FetchPriceFromPage(pageCtx, c.Link)
			return nil
		})
	}
	_ = pages.Wait()

	quotes := make([]domain.PriceQuote, 0, len(candidates))
	for i, c := range candidates {
		if prices[i] == nil {
			continue
		}
		quotes = append(quotes, domain.PriceQuote{
			Retailer:     retailerFromHost(c.DisplayLink, c.Link),
			Price:        prices[i].Amount,
			Currency:     prices[i].Currency,
			ProductURL:   c.Link,
			ProductTitle: c.Title,
			ImageURL:     c.ImageURL,
			InStock:      true,
		})
	}

	return quotes, nil
}

// mergeCandidates flattens variant results in order, keeping the first result per
// canonical URL and dropping non-commerce hosts and irrelevant listings.
func (s *PriceSearchService) mergeCandidates(query string, results [][]domain.WebResult) []domain.WebResult {
	seen := make(map[string]bool)
	var merged []domain.WebResult

	for _, variantResults := range results {
		for _, r := range variantResults {
			key := canonicalURL(r.Link)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true

			if isNonCommerceHost(r.DisplayLink) || isNonCommerceHost(hostOf(r.Link)) {
				continue
			}
			if s.config.MinRelevance > 0 {
				if score, _ := s.matcher.Score(query, r.Title); score < s.config.MinRelevance {
					s.log.Debug("dropping irrelevant listing",
						logger.String("title", r.Title),
						logger.Float64("score", score))
					continue
				}
			}
			merged = append(merged, r)
		}
	}

	return merged
}

// finalizeQuotes keeps plausible quotes, deduplicates by product URL (the last quote
// for a URL replaces earlier ones), sorts by price and truncates.
func finalizeQuotes(quotes []domain.PriceQuote, maxResults int) []domain.PriceQuote {
	index := make(map[string]int, len(quotes))
	out := make([]domain.PriceQuote, 0, len(quotes))

	for _, q := range quotes {
		if !q.Valid() {
			continue
		}
		q.Price = domain.RoundPrice(q.Price)
		if i, ok := index[q.ProductURL]; ok {
			out[i] = q
			continue
		}
		index[q.ProductURL] = len(out)
		out = append(out, q)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })

	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

func allFailed(errs []error) bool {
	for _, err := range errs {
		if err == nil {
			return false
		}
	}
	return true
}

func hasShoppingIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range shoppingIntentMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isNonCommerceHost(host string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	for _, h := range nonCommerceHosts {
		if strings.Contains(host, h) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// canonicalURL lowercases the host and drops the fragment, tracking parameters and a
// trailing slash
func canonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""

	return u.String()
}

// retailerFromHost derives a display name such as "Argos" from "www.argos.co.uk"
func retailerFromHost(displayLink, link string) string {
	host := strings.ToLower(strings.TrimSpace(displayLink))
	if host == "" {
		host = strings.ToLower(hostOf(link))
	}
	host = strings.TrimPrefix(host, "www.")
	host = retailerTLDRegex.ReplaceAllString(host, "")
	if host == "" {
		return "Unknown"
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
