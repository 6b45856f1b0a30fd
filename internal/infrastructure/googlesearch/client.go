// Package googlesearch is a client for the Google Custom Search JSON API.
package googlesearch

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
	DefaultBaseURL = "https://www.googleapis.com"
	providerName   = "google"
	// the API rejects num > 10
	maxPerRequest = 10
)

// Client handles communication with the Custom Search API
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	log         logger.Logger
}

// NewClient creates a new Custom Search client
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		// free tier: 100 queries/day, burst for the query variants of one search
		rateLimiter: rate.NewLimiter(rate.Limit(2), 4),
		log:         log,
	}
}

type searchResponse struct {
	Items []searchItem `json:"items"`
	Error *apiError    `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type searchItem struct {
	Title       string  `json:"title"`
	Link        string  `json:"link"`
	DisplayLink string  `json:"displayLink"`
	Snippet     string  `json:"snippet"`
	PageMap     pageMap `json:"pagemap"`
}

type pageMap struct {
	CSEImage     []imageRef `json:"cse_image"`
	CSEThumbnail []imageRef `json:"cse_thumbnail"`
}

type imageRef struct {
	Src string `json:"src"`
}

func (i searchItem) imageURL() string {
	if len(i.PageMap.CSEImage) > 0 && i.PageMap.CSEImage[0].Src != "" {
		return i.PageMap.CSEImage[0].Src
	}
	if len(i.PageMap.CSEThumbnail) > 0 {
		return i.PageMap.CSEThumbnail[0].Src
	}
	return ""
}

// SearchWeb runs one web search restricted to the configured engine
func (c *Client) SearchWeb(ctx context.Context, cfg domain.SearchConfig, query string, limit int) ([]domain.WebResult, error) {
	if cfg.GoogleAPIKey == "" || cfg.GoogleSearchEngineID == "" {
		return nil, domain.ErrNotConfigured
	}
	if limit <= 0 || limit > maxPerRequest {
		limit = maxPerRequest
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	params := url.Values{}
	params.Set("key", cfg.GoogleAPIKey)
	params.Set("cx", cfg.GoogleSearchEngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(limit))
	params.Set("safe", "active")
	if cfg.Country != "" {
		params.Set("gl", cfg.Country)
	}
	reqURL := fmt.Sprintf("%s/customsearch/v1?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := http.StatusText(resp.StatusCode)
		var parsed searchResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		c.log.Warn("custom search returned an error",
			logger.Int("status", resp.StatusCode),
			logger.String("message", msg))
		return nil, fmt.Errorf("%w: custom search status %d: %s", domain.ErrProviderError, resp.StatusCode, msg)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]domain.WebResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, domain.WebResult{
			Title:       item.Title,
			Link:        item.Link,
			DisplayLink: item.DisplayLink,
			Snippet:     item.Snippet,
			ImageURL:    item.imageURL(),
		})
	}

	outcome := metrics.OutcomeSuccess
	if len(results) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.ObserveProvider(providerName, outcome)

	return results, nil
}
