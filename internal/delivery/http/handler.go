package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/usecase"
)

// TitleExtractor extracts a product title from a page URL
type TitleExtractor interface {
	ExtractFromURL(ctx context.Context, rawURL string) (domain.ExtractedTitle, error)
}

// ImageAnalyzer identifies the product in an image
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, imageBase64 string, cfg domain.VisionConfig) domain.ImageRecognitionResult
}

// PriceComparer finds retailer prices for a wish-list item
type PriceComparer interface {
	Compare(ctx context.Context, request domain.PriceComparisonRequest, cfg domain.SearchConfig) (*domain.PriceComparison, error)
}

// Services are the usecases exposed over HTTP. A nil service answers 503.
type Services struct {
	Titles TitleExtractor
	Images ImageAnalyzer
	Prices PriceComparer
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	services  Services
	providers domain.ProviderConfig
	log       logger.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services, providers domain.ProviderConfig, log logger.Logger) *Handler {
	return &Handler{
		services:  services,
		providers: providers,
		log:       log,
	}
}

type urlRequest struct {
	URL string `json:"url" binding:"required"`
}

type imageRequest struct {
	Image string `json:"image" binding:"required"`
}

// titleResponse writes an absent title or description as null
type titleResponse struct {
	Title          *string                 `json:"title"`
	Description    *string                 `json:"description"`
	ErrorReason    domain.TitleErrorReason `json:"errorReason,omitempty"`
	UpstreamStatus int                     `json:"upstreamStatus,omitempty"`
	Blocked        bool                    `json:"blocked,omitempty"`
}

func newTitleResponse(title domain.ExtractedTitle) titleResponse {
	return titleResponse{
		Title:       domain.NullableString(title.Title),
		Description: domain.NullableString(title.Description),
		ErrorReason: title.ErrorReason,
	}
}

type priceSearchResponse struct {
	domain.PriceComparison
	Message string `json:"message,omitempty"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "wishlist-backend",
		"version": "1.0.0",
	})
}

// ExtractTitle scrapes the product title of a page. Pages that cannot be fetched
// still answer 200 with extraction_failed and the upstream status when known.
func (h *Handler) ExtractTitle(c *gin.Context) {
	if h.services.Titles == nil {
		notConfigured(c, "title extraction")
		return
	}

	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	title, err := h.services.Titles.ExtractFromURL(c.Request.Context(), req.URL)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidURL) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp := newTitleResponse(domain.ExtractedTitle{ErrorReason: domain.TitleExtractionFailed})
		resp.Blocked = errors.Is(err, domain.ErrBlocked)
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) {
			resp.UpstreamStatus = fetchErr.StatusCode
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	c.JSON(http.StatusOK, newTitleResponse(title))
}

// AnalyzeImage identifies the product in a base64 image
func (h *Handler) AnalyzeImage(c *gin.Context) {
	if h.services.Images == nil {
		notConfigured(c, "image recognition")
		return
	}

	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is required"})
		return
	}

	result := h.services.Images.AnalyzeImage(c.Request.Context(), req.Image, h.providers.Vision)

	switch result.ErrorReason {
	case domain.RecognitionNotConfigured:
		c.JSON(http.StatusServiceUnavailable, result)
	case domain.RecognitionInvalidImage:
		c.JSON(http.StatusBadRequest, result)
	default:
		c.JSON(http.StatusOK, result)
	}
}

// SearchPrices runs a price comparison for a wish-list item
func (h *Handler) SearchPrices(c *gin.Context) {
	if h.services.Prices == nil {
		notConfigured(c, "price comparison")
		return
	}

	var req domain.PriceComparisonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "itemId is required"})
		return
	}

	comparison, err := h.services.Prices.Compare(c.Request.Context(), req, h.providers.Search)
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "query, title or description is required"})
		return
	case errors.Is(err, domain.ErrNotConfigured):
		notConfigured(c, "price comparison")
		return
	case errors.Is(err, domain.ErrProviderUnavailable):
		h.log.Warn("price providers unavailable", logger.String("item_id", req.ItemID), logger.Err(err))
		c.JSON(http.StatusOK, priceSearchResponse{
			PriceComparison: domain.PriceComparison{ItemID: req.ItemID, Prices: []domain.PriceQuote{}},
			Message:         "Price search is temporarily unavailable",
		})
		return
	case err != nil:
		h.log.Error("price comparison failed", logger.String("item_id", req.ItemID), logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search prices"})
		return
	}

	resp := priceSearchResponse{PriceComparison: *comparison}
	if len(comparison.Prices) == 0 {
		resp.Prices = []domain.PriceQuote{}
		resp.Message = "No prices found for this product"
	}
	c.JSON(http.StatusOK, resp)
}

// PriceConfig reports which providers are configured, without exposing secrets
func (h *Handler) PriceConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.providers.Status())
}

// AffiliateLink converts a product link to an affiliate link where possible
func (h *Handler) AffiliateLink(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	c.JSON(http.StatusOK, usecase.ConvertAffiliateLink(req.URL, h.providers.Affiliate))
}

func notConfigured(c *gin.Context, feature string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":       feature + " is not configured",
		"errorReason": domain.RecognitionNotConfigured,
	})
}
