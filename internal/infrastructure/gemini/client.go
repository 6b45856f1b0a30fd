// Package gemini asks a Gemini vision-language model to identify the product in an image.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/metrics"
)

const (
	DefaultModel = "gemini-2.5-flash"
	providerName = "gemini"
)

const productPrompt = `Identify the product shown in this image so it can be added to a wish list.
Answer in exactly this format:
Product: <brand and model or a short specific product name>
Description: <one or two sentences describing the product>
Features: <comma separated notable features>
If there is no identifiable product, answer "Product: unknown".`

// Client calls the Gemini API through the genai SDK
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	log         logger.Logger
}

// NewClient creates a Gemini client. baseURL overrides the API endpoint and is empty in production.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(5), 5),
		log:         log,
	}
}

// DescribeProduct sends the image with the identification prompt and returns the model's text
func (c *Client) DescribeProduct(ctx context.Context, cfg domain.VisionConfig, image domain.ImageInput) (string, error) {
	if cfg.GeminiAPIKey == "" {
		return "", domain.ErrNotConfigured
	}

	data, err := base64.StdEncoding.DecodeString(image.Base64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.GeminiModel
	if model == "" {
		model = DefaultModel
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(productPrompt),
			genai.NewPartFromBytes(data, image.MIMEType),
		}, genai.RoleUser),
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		metrics.ObserveProvider(providerName, metrics.OutcomeError)
		if apiErr, ok := asAPIError(err); ok {
			c.log.Warn("gemini returned an error",
				logger.Int("code", apiErr.Code),
				logger.String("message", apiErr.Message))
			return "", fmt.Errorf("%w: %s", domain.ErrProviderError, apiErr.Message)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		metrics.ObserveProvider(providerName, metrics.OutcomeEmpty)
		return "", domain.ErrNoResults
	}

	metrics.ObserveProvider(providerName, metrics.OutcomeSuccess)
	return text, nil
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}
