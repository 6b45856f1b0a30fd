package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Price bounds shared by every component that produces or stores a price.
const (
	MinPlausiblePrice = 0.01
	MaxPlausiblePrice = 100000.0
	// PlaceholderPrice is a sentinel some scraped sources use for "no price"
	PlaceholderPrice = 999999.0
)

// IsPlausiblePrice reports whether amount passes the plausibility filter.
func IsPlausiblePrice(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return amount >= MinPlausiblePrice && amount <= MaxPlausiblePrice && amount != PlaceholderPrice
}

// RoundPrice rounds an amount to minor units.
func RoundPrice(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// TitleErrorReason explains why no title could be extracted
type TitleErrorReason string

const TitleExtractionFailed TitleErrorReason = "extraction_failed"

// ExtractedTitle is the product title recovered from a page. Empty strings mean absent.
type ExtractedTitle struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	ErrorReason TitleErrorReason `json:"errorReason,omitempty"`
}

// MarshalJSON writes absent title and description as null
func (t ExtractedTitle) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Title       *string          `json:"title"`
		Description *string          `json:"description"`
		ErrorReason TitleErrorReason `json:"errorReason,omitempty"`
	}{
		Title:       NullableString(t.Title),
		Description: NullableString(t.Description),
		ErrorReason: t.ErrorReason,
	})
}

// NullableString maps "" to nil
func NullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Price is a monetary amount with its ISO-4217 currency code
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// PriceQuote is one retailer's observed price for a product
type PriceQuote struct {
	Retailer     string  `json:"retailer"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	ProductURL   string  `json:"product_url"`
	ProductTitle string  `json:"product_title"`
	ImageURL     string  `json:"image_url,omitempty"`
	InStock      bool    `json:"in_stock"`
}

// Valid reports whether the quote satisfies the price invariant
func (q PriceQuote) Valid() bool {
	return IsPlausiblePrice(q.Price)
}

// RecognitionMethod names the node of the image recognition chain that produced a result
type RecognitionMethod string

const (
	MethodPrimary  RecognitionMethod = "primary"
	MethodFallback RecognitionMethod = "fallback"
)

// RecognitionErrorReason is the error taxonomy exposed by the image recognizer
type RecognitionErrorReason string

const (
	RecognitionNotConfigured RecognitionErrorReason = "not_configured"
	RecognitionProviderError RecognitionErrorReason = "provider_error"
	RecognitionNoResults     RecognitionErrorReason = "no_results"
	RecognitionInvalidImage  RecognitionErrorReason = "invalid_image"
)

// ImageRecognitionResult is the product identified in an uploaded image
type ImageRecognitionResult struct {
	ProductName string                 `json:"productName"`
	Description string                 `json:"description"`
	Labels      []string               `json:"labels"`
	ErrorReason RecognitionErrorReason `json:"errorReason,omitempty"`
	ErrorDetail string                 `json:"errorDetail,omitempty"`
	MethodUsed  RecognitionMethod      `json:"methodUsed"`
}

// Succeeded reports whether a product name was recognized without error
func (r ImageRecognitionResult) Succeeded() bool {
	return r.ErrorReason == "" && r.ProductName != ""
}

// ImageInput is a normalized image payload
type ImageInput struct {
	Base64   string
	MIMEType string
}

// LabelAnnotations are the raw annotation lists returned by a label-detection API
type LabelAnnotations struct {
	Labels  []string
	Text    string
	Objects []string
}

// ShoppingResult is a raw listing from a shopping-search provider
type ShoppingResult struct {
	Title     string
	Link      string
	Source    string
	Price     string
	Currency  string
	Thumbnail string
	InStock   *bool
}

// WebResult is a raw hit from a generic web-search provider
type WebResult struct {
	Title       string
	Link        string
	DisplayLink string
	Snippet     string
	ImageURL    string
}

// PriceComparisonRequest asks for quotes for a wish-list item
type PriceComparisonRequest struct {
	ItemID      string `json:"itemId" binding:"required"`
	Query       string `json:"query,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	LinkURL     string `json:"linkUrl,omitempty"`
}

// PriceComparison is the outcome of a price comparison for an item
type PriceComparison struct {
	ItemID    string       `json:"itemId"`
	Prices    []PriceQuote `json:"prices"`
	Cached    bool         `json:"cached"`
	Query     string       `json:"query,omitempty"`
	FetchedAt time.Time    `json:"fetchedAt"`
}
