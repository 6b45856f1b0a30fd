package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
)

// MockPriceSearcher is a mock implementation of PriceSearcher
type MockPriceSearcher struct {
	quotes  []domain.PriceQuote
	err     error
	queries []string
}

func (m *MockPriceSearcher) SearchPrices(ctx context.Context, query string, cfg domain.SearchConfig, maxResults int) ([]domain.PriceQuote, error) {
	m.queries = append(m.queries, query)
	return m.quotes, m.err
}

// MockTitleSource is a mock implementation of TitleSource
type MockTitleSource struct {
	title domain.ExtractedTitle
	err   error
	urls  []string
}

func (m *MockTitleSource) ExtractFromURL(ctx context.Context, rawURL string) (domain.ExtractedTitle, error) {
	m.urls = append(m.urls, rawURL)
	return m.title, m.err
}

func newComparisonService(cache *MockCacheRepository, titles TitleSource, search PriceSearcher) *PriceComparisonService {
	log := logger.NewNop()
	return NewPriceComparisonService(
		NewPriceCache(cache, 0, log),
		titles,
		NewQueryBuilder(log),
		search,
		PriceComparisonConfig{},
		log,
	)
}

func TestNewPriceComparisonService(t *testing.T) {
	t.Run("creates service with default values", func(t *testing.T) {
		svc := newComparisonService(NewMockCacheRepository(), nil, &MockPriceSearcher{})
		if svc.maxResults != DefaultMaxResults {
			t.Errorf("maxResults = %d, want %d", svc.maxResults, DefaultMaxResults)
		}
	})

	t.Run("creates service with custom values", func(t *testing.T) {
		log := logger.NewNop()
		svc := NewPriceComparisonService(nil, nil, NewQueryBuilder(log), &MockPriceSearcher{}, PriceComparisonConfig{MaxResults: 3}, log)
		if svc.maxResults != 3 {
			t.Errorf("maxResults = %d, want 3", svc.maxResults)
		}
	})
}

func TestCompare(t *testing.T) {
	ctx := context.Background()
	cfg := domain.SearchConfig{SerpAPIKey: "serp"}

	t.Run("returns error for missing item id", func(t *testing.T) {
		svc := newComparisonService(NewMockCacheRepository(), nil, &MockPriceSearcher{})

		_, err := svc.Compare(ctx, domain.PriceComparisonRequest{Title: "Kettle"}, cfg)
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("returns error when nothing to search for", func(t *testing.T) {
		search := &MockPriceSearcher{}
		svc := newComparisonService(NewMockCacheRepository(), nil, search)

		_, err := svc.Compare(ctx, domain.PriceComparisonRequest{ItemID: "item-1"}, cfg)
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
		if len(search.queries) != 0 {
			t.Errorf("search called %d times, want 0", len(search.queries))
		}
	})

	t.Run("returns cached prices on fresh cache hit", func(t *testing.T) {
		cache := NewMockCacheRepository()
		search := &MockPriceSearcher{}
		svc := newComparisonService(cache, nil, search)

		if err := svc.cache.Store(ctx, "item-1", []domain.PriceQuote{
			{Retailer: "Argos", ProductURL: "https://argos/1", Price: 20},
		}); err != nil {
			t.Fatalf("seed cache: %v", err)
		}

		result, err := svc.Compare(ctx, domain.PriceComparisonRequest{ItemID: "item-1", Title: "Kettle"}, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Cached {
			t.Error("Cached = false, want true")
		}
		if len(result.Prices) != 1 || result.Prices[0].Retailer != "Argos" {
			t.Errorf("Prices = %+v, want the cached Argos quote", result.Prices)
		}
		if len(search.queries) != 0 {
			t.Error("expected no search on cache hit")
		}
	})

	t.Run("searches and caches on cache miss", func(t *testing.T) {
		cache := NewMockCacheRepository()
		search := &MockPriceSearcher{quotes: []domain.PriceQuote{
			{Retailer: "Currys", ProductURL: "https://currys/1", Price: 99.99},
		}}
		svc := newComparisonService(cache, nil, search)
		fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return fixed }

		result, err := svc.Compare(ctx, domain.PriceComparisonRequest{
			ItemID: "item-2",
			Title:  "Ninja Air Fryer AF100",
		}, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Cached {
			t.Error("Cached = true, want false")
		}
		if result.Query != "Ninja Air Fryer AF100" {
			t.Errorf("Query = %q", result.Query)
		}
		if !result.FetchedAt.Equal(fixed) {
			t.Errorf("FetchedAt = %v, want %v", result.FetchedAt, fixed)
		}
		if !cache.setCalled {
			t.Error("expected cache.Set to be called")
		}
	})

	t.Run("explicit query wins", func(t *testing.T) {
		search := &MockPriceSearcher{}
		svc := newComparisonService(NewMockCacheRepository(), nil, search)

		_, err := svc.Compare(ctx, domain.PriceComparisonRequest{
			ItemID: "item-3",
			Query:  "lego 42115",
			Title:  "Lamborghini set",
		}, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(search.queries) != 1 || search.queries[0] != "lego 42115" {
			t.Errorf("queries = %v, want [lego 42115]", search.queries)
		}
	})

	t.Run("does not cache empty results", func(t *testing.T) {
		cache := NewMockCacheRepository()
		svc := newComparisonService(cache, nil, &MockPriceSearcher{quotes: []domain.PriceQuote{}})

		result, err := svc.Compare(ctx, domain.PriceComparisonRequest{ItemID: "item-4", Title: "Obscure thing"}, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Prices) != 0 {
			t.Errorf("Prices = %v, want empty", result.Prices)
		}
		if cache.setCalled {
			t.Error("expected cache.Set not to be called")
		}
	})

	t.Run("returns search errors", func(t *testing.T) {
		search := &MockPriceSearcher{err: domain.ErrNotConfigured}
		svc := newComparisonService(NewMockCacheRepository(), nil, search)

		_, err := svc.Compare(ctx, domain.PriceComparisonRequest{ItemID: "item-5", Title: "Kettle"}, cfg)
		if !errors.Is(err, domain.ErrNotConfigured) {
			t.Errorf("error = %v, want ErrNotConfigured", err)
		}
	})

	t.Run("returns quotes when cache write fails", func(t *testing.T) {
		cache := NewMockCacheRepository()
		cache.setError = errors.New("redis down")
		svc := newComparisonService(cache, nil, &MockPriceSearcher{quotes: []domain.PriceQuote{
			{Retailer: "A", ProductURL: "a", Price: 1},
		}})

		result, err := svc.Compare(ctx, domain.PriceComparisonRequest{ItemID: "item-6", Title: "Kettle"}, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Prices) != 1 {
			t.Errorf("Prices = %v, want 1 quote", result.Prices)
		}
	})
}

func TestCompare_TitleEnrichment(t *testing.T) {
	ctx := context.Background()
	cfg := domain.SearchConfig{SerpAPIKey: "serp"}

	tests := []struct {
		name      string
		request   domain.PriceComparisonRequest
		extracted domain.ExtractedTitle
		err       error
		wantQuery string
		wantFetch bool
	}{
		{
			name:      "short title replaced by longer scraped title",
			request:   domain.PriceComparisonRequest{ItemID: "i", Title: "Headphones", LinkURL: "https://shop.example/p"},
			extracted: domain.ExtractedTitle{Title: "Sony WH-1000XM5 Wireless Headphones"},
			wantQuery: "Sony WH-1000XM5 Wireless Headphones",
			wantFetch: true,
		},
		{
			name:      "scraped title not longer",
			request:   domain.PriceComparisonRequest{ItemID: "i", Title: "Headphones", LinkURL: "https://shop.example/p"},
			extracted: domain.ExtractedTitle{Title: "Sony"},
			wantQuery: "Headphones",
			wantFetch: true,
		},
		{
			name:      "fetch failure keeps title",
			request:   domain.PriceComparisonRequest{ItemID: "i", Title: "Headphones", LinkURL: "https://shop.example/p"},
			err:       &domain.FetchError{URL: "https://shop.example/p", StatusCode: 403, Err: domain.ErrUpstreamStatus},
			wantQuery: "Headphones",
			wantFetch: true,
		},
		{
			name:      "invalid link keeps title",
			request:   domain.PriceComparisonRequest{ItemID: "i", Title: "Headphones", LinkURL: "ftp://x"},
			err:       fmt.Errorf("%w: bad scheme", domain.ErrInvalidURL),
			wantQuery: "Headphones",
			wantFetch: true,
		},
		{
			name:      "long title not enriched",
			request:   domain.PriceComparisonRequest{ItemID: "i", Title: "Bose QuietComfort Ultra Headphones", LinkURL: "https://shop.example/p"},
			extracted: domain.ExtractedTitle{Title: "Something much longer than the stored title"},
			wantQuery: "Bose QuietComfort Ultra Headphones",
		},
		{
			name:      "no link",
			request:   domain.PriceComparisonRequest{ItemID: "i", Title: "Headphones"},
			wantQuery: "Headphones",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			titles := &MockTitleSource{title: tt.extracted, err: tt.err}
			search := &MockPriceSearcher{}
			svc := newComparisonService(NewMockCacheRepository(), titles, search)

			if _, err := svc.Compare(ctx, tt.request, cfg); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := len(titles.urls) > 0; got != tt.wantFetch {
				t.Errorf("fetched = %v, want %v", got, tt.wantFetch)
			}
			if len(search.queries) != 1 || search.queries[0] != tt.wantQuery {
				t.Errorf("queries = %v, want [%s]", search.queries, tt.wantQuery)
			}
		})
	}
}
