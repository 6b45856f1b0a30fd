package usecase

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
)

// shortTitleLength is the title length below which the item link is scraped for a better one
const shortTitleLength = 20

// TitleSource extracts a product title from a page URL
type TitleSource interface {
	ExtractFromURL(ctx context.Context, rawURL string) (domain.ExtractedTitle, error)
}

// PriceSearcher finds quotes for a query
type PriceSearcher interface {
	SearchPrices(ctx context.Context, query string, cfg domain.SearchConfig, maxResults int) ([]domain.PriceQuote, error)
}

// PriceComparisonConfig holds configuration for the price comparison service
type PriceComparisonConfig struct {
	MaxResults int
}

// PriceComparisonService runs the price comparison for a wish-list item
type PriceComparisonService struct {
	cache      *PriceCache
	titles     TitleSource
	queries    *QueryBuilder
	search     PriceSearcher
	maxResults int
	now        func() time.Time
	log        logger.Logger
}

// NewPriceComparisonService creates a new price comparison service with dependencies
func NewPriceComparisonService(
	cache *PriceCache,
	titles TitleSource,
	queries *QueryBuilder,
	search PriceSearcher,
	config PriceComparisonConfig,
	log logger.Logger,
) *PriceComparisonService {
	maxResults := config.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	return &PriceComparisonService{
		cache:      cache,
		titles:     titles,
		queries:    queries,
		search:     search,
		maxResults: maxResults,
		now:        time.Now,
		log:        log,
	}
}

// Compare returns quotes for an item.
// Flow: fresh cache -> enrich short title from the link -> build query -> search -> cache
func (s *PriceComparisonService) Compare(
	ctx context.Context,
	request domain.PriceComparisonRequest,
	cfg domain.SearchConfig,
) (*domain.PriceComparison, error) {
	if request.ItemID == "" {
		return nil, domain.ErrInvalidRequest
	}

	if quotes, updated, ok := s.cache.Fresh(ctx, request.ItemID, s.maxResults); ok {
		return &domain.PriceComparison{
			ItemID:    request.ItemID,
			Prices:    quotes,
			Cached:    true,
			FetchedAt: updated,
		}, nil
	}

	title := s.enrichTitle(ctx, request)

	query := s.queries.Build(request.Query, title, request.Description)
	if query == "" {
		return nil, domain.ErrInvalidRequest
	}

	quotes, err := s.search.SearchPrices(ctx, query, cfg, s.maxResults)
	if err != nil {
		return nil, err
	}

	if len(quotes) > 0 {
		// quotes are still returned when they cannot be stored
		if err := s.cache.Store(ctx, request.ItemID, quotes); err != nil {
			s.log.Warn("failed to store price comparison",
				logger.String("item_id", request.ItemID),
				logger.Err(err))
		}
	}

	return &domain.PriceComparison{
		ItemID:    request.ItemID,
		Prices:    quotes,
		Query:     query,
		FetchedAt: s.now(),
	}, nil
}

// enrichTitle replaces a short stored title with the one scraped from the item link
// when that one is longer. Scrape failures keep the stored title.
func (s *PriceComparisonService) enrichTitle(ctx context.Context, request domain.PriceComparisonRequest) string {
	title := request.Title
	if request.LinkURL == "" || utf8.RuneCountInString(title) >= shortTitleLength || s.titles == nil {
		return title
	}

	extracted, err := s.titles.ExtractFromURL(ctx, request.LinkURL)
	if err != nil {
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) {
			s.log.Info("title enrichment skipped",
				logger.String("url", request.LinkURL),
				logger.Int("status", fetchErr.StatusCode))
		} else {
			s.log.Info("title enrichment skipped", logger.String("url", request.LinkURL), logger.Err(err))
		}
		return title
	}

	if utf8.RuneCountInString(extracted.Title) > utf8.RuneCountInString(title) {
		return extracted.Title
	}
	return title
}
