package cloudvision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/metrics"
)

const (
	DefaultBaseURL = "https://vision.googleapis.com"
	providerName   = "cloud_vision"
	maxAnnotations = 10
)

// Client calls the Cloud Vision images:annotate endpoint
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	log         logger.Logger
}

// NewClient creates a new Cloud Vision client
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		rateLimiter: rate.NewLimiter(rate.Limit(10), 10),
		log:         log,
	}
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type annotateResponse struct {
	Responses []imageResponse `json:"responses"`
	Error     *status         `json:"error"`
}

type imageResponse struct {
	LabelAnnotations           []entity       `json:"labelAnnotations"`
	TextAnnotations            []entity       `json:"textAnnotations"`
	LocalizedObjectAnnotations []objectEntity `json:"localizedObjectAnnotations"`
	Error                      *status        `json:"error"`
}

type entity struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type objectEntity struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DetectLabels requests label, text and object annotations for one image
func (c *Client) DetectLabels(ctx context.Context, cfg domain.VisionConfig, image domain.ImageInput) (*domain.LabelAnnotations, error) {
	if cfg.CloudVisionAPIKey == "" {
		return nil, domain.ErrNotConfigured
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	payload, err := json.Marshal(annotateRequest{
		Requests: []imageRequest{{
			Image: imageContent{Content: image.Base64},
			Features: []feature{
				{Type: "LABEL_DETECTION", MaxResults: maxAnnotations},
				{Type: "TEXT_DETECTION", MaxResults: maxAnnotations},
				{Type: "OBJECT_LOCALIZATION", MaxResults: maxAnnotations},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/v1/images:annotate?%s", c.baseURL, url.Values{"key": {cfg.CloudVisionAPIKey}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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

	var parsed annotateResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		c.log.Warn("cloud vision returned an error",
			logger.Int("status", resp.StatusCode),
			logger.String("message", msg))
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderError, msg)
	}
	if decodeErr != nil {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	if len(parsed.Responses) == 0 {
		metrics.ObserveProvider(providerName, metrics.OutcomeEmpty)
		return nil, domain.ErrNoResults
	}

	first := parsed.Responses[0]
	if first.Error != nil && first.Error.Message != "" {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderError, first.Error.Message)
	}

	annotations := &domain.LabelAnnotations{}
	for _, l := range first.LabelAnnotations {
		annotations.Labels = append(annotations.Labels, l.Description)
	}
	// the first text annotation is the full detected text block
	if len(first.TextAnnotations) > 0 {
		annotations.Text = first.TextAnnotations[0].Description
	}
	for _, o := range first.LocalizedObjectAnnotations {
		annotations.Objects = append(annotations.Objects, o.Name)
	}

	metrics.ObserveProvider(providerName, metrics.OutcomeSuccess)
	return annotations, nil
}
