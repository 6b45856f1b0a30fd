package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/metrics"
)

const (
	// DefaultBaseURL is the public SerpAPI endpoint
	DefaultBaseURL = "https://serpapi.com"
	providerName   = "serpapi"
)

// Client queries the SerpAPI Google Shopping engine
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	log         logger.Logger
}

// NewClient creates a new SerpAPI client. Credentials are supplied per call.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		rateLimiter: rate.NewLimiter(rate.Limit(5), 5),
		log:         log,
	}
}

type shoppingResponse struct {
	Error           string         `json:"error"`
	ShoppingResults []shoppingItem `json:"shopping_results"`
}

type shoppingItem struct {
	Title          string  `json:"title"`
	Link           string  `json:"link"`
	ProductLink    string  `json:"product_link"`
	Source         string  `json:"source"`
	Price          string  `json:"price"`
	ExtractedPrice float64 `json:"extracted_price"`
	Currency       string  `json:"currency"`
	Thumbnail      string  `json:"thumbnail"`
	InStock        *bool   `json:"in_stock"`
}

// SearchShopping runs one Google Shopping query and returns the raw listings
func (c *Client) SearchShopping(ctx context.Context, cfg domain.SearchConfig, query string, limit int) ([]domain.ShoppingResult, error) {
	if cfg.SerpAPIKey == "" {
		return nil, domain.ErrNotConfigured
	}
	if limit <= 0 {
		limit = 10
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	params := url.Values{}
	params.Set("engine", "google_shopping")
	params.Set("q", query)
	params.Set("api_key", cfg.SerpAPIKey)
	params.Set("num", strconv.Itoa(limit))
	if cfg.Country != "" {
		params.Set("gl", cfg.Country)
	}
	reqURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrTransportFailure, err)
	}

	var parsed shoppingResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		msg := parsed.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.log.Warn("serpapi returned an error",
			logger.Int("status", resp.StatusCode),
			logger.String("message", msg))
		return nil, fmt.Errorf("%w: serpapi status %d: %s", domain.ErrProviderError, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	// SerpAPI reports some failures in-band with a 200
	if parsed.Error != "" && len(parsed.ShoppingResults) == 0 {
		if parsed.Error == "Google Shopping hasn't returned any results for this query." {
			metrics.ObserveProvider(providerName, metrics.OutcomeEmpty)
			return []domain.ShoppingResult{}, nil
		}
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderError, parsed.Error)
	}

	results := make([]domain.ShoppingResult, 0, len(parsed.ShoppingResults))
	for _, item := range parsed.ShoppingResults {
		link := item.Link
		if link == "" {
			link = item.ProductLink
		}
		price := item.Price
		if price == "" && item.ExtractedPrice > 0 {
			price = strconv.FormatFloat(item.ExtractedPrice, 'f', 2, 64)
		}
		results = append(results, domain.ShoppingResult{
			Title:     item.Title,
			Link:      link,
			Source:    item.Source,
			Price:     price,
			Currency:  item.Currency,
			Thumbnail: item.Thumbnail,
			InStock:   item.InStock,
		})
		if len(results) == limit {
			break
		}
	}

	outcome := metrics.OutcomeSuccess
	if len(results) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.ObserveProvider(providerName, outcome)
	c.log.Debug("serpapi shopping search",
		logger.String("query", query),
		logger.Int("results", len(results)))

	return results, nil
}
