package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// PageFetcher retrieves raw markup for a URL
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// ProductDescriber is the primary vision-language model. It returns the model's
// raw textual answer.
type ProductDescriber interface {
	DescribeProduct(ctx context.Context, cfg VisionConfig, image ImageInput) (string, error)
}

// LabelDetector is the fallback label/text/object detection API
type LabelDetector interface {
	DetectLabels(ctx context.Context, cfg VisionConfig, image ImageInput) (*LabelAnnotations, error)
}

// ShoppingSearcher queries a structured shopping-search provider
type ShoppingSearcher interface {
	SearchShopping(ctx context.Context, cfg SearchConfig, query string, limit int) ([]ShoppingResult, error)
}

// WebSearcher queries a generic web-search provider
type WebSearcher interface {
	SearchWeb(ctx context.Context, cfg SearchConfig, query string, limit int) ([]WebResult, error)
}
