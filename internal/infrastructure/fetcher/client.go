package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
)

// DefaultUserAgent identifies as a desktop browser; retail sites serve stripped or
// blocked pages to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Options configures a Client
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	// RatePerSecond bounds outbound page requests; zero disables limiting
	RatePerSecond float64
	Burst         int
}

// Client fetches raw HTML for product pages
type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
	rateLimiter  *rate.Limiter
	detector     *BotDetector
	log          logger.Logger
}

// NewClient creates a page fetcher
func NewClient(opts Options, log logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 << 20
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Client{
		httpClient:   &http.Client{Timeout: opts.Timeout},
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
		rateLimiter:  limiter,
		detector:     NewBotDetector(),
		log:          log,
	}
}

// FetchHTML retrieves the markup at pageURL. Failures are returned as *domain.FetchError.
func (c *Client) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", &domain.FetchError{URL: pageURL, Err: fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("page fetch failed", logger.String("url", pageURL), logger.Err(err))
		return "", &domain.FetchError{URL: pageURL, Err: fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("page fetch non-2xx", logger.String("url", pageURL), logger.Int("status", resp.StatusCode))
		return "", &domain.FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: domain.ErrUpstreamStatus}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", &domain.FetchError{URL: pageURL, Err: fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)}
		}
		return "", &domain.FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: read body: %v", domain.ErrTransportFailure, err)}
	}

	html := string(body)
	if blocked, reason := c.detector.IsBotWall(html); blocked {
		c.log.Info("page looks like a bot wall", logger.String("url", pageURL), logger.String("reason", reason))
		return "", &domain.FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: domain.ErrBlocked}
	}

	return html, nil
}
