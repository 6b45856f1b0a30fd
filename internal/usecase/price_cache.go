package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
)

// DefaultPriceFreshness is how long stored quotes are served without a new search
const DefaultPriceFreshness = 24 * time.Hour

// cachedQuote is one stored row, unique per (retailer, product URL)
type cachedQuote struct {
	domain.PriceQuote
	LastUpdated time.Time `json:"lastUpdated"`
}

// PriceCache stores the quotes found for each wish-list item
type PriceCache struct {
	cache     domain.CacheRepository
	freshness time.Duration
	now       func() time.Time
	log       logger.Logger
}

// NewPriceCache creates a price cache over any cache backend
func NewPriceCache(cache domain.CacheRepository, freshness time.Duration, log logger.Logger) *PriceCache {
	if freshness <= 0 {
		freshness = DefaultPriceFreshness
	}
	return &PriceCache{
		cache:     cache,
		freshness: freshness,
		now:       time.Now,
		log:       log,
	}
}

// Fresh returns the item's plausible quotes updated within the freshness window,
// cheapest first, and the time of the most recent update. ok is false when there
// is nothing worth serving.
func (c *PriceCache) Fresh(ctx context.Context, itemID string, limit int) (quotes []domain.PriceQuote, updated time.Time, ok bool) {
	rows, err := c.load(ctx, itemID)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.log.Warn("price cache read failed", logger.String("item_id", itemID), logger.Err(err))
		}
		return nil, time.Time{}, false
	}

	cutoff := c.now().Add(-c.freshness)
	for _, row := range rows {
		if row.LastUpdated.Before(cutoff) || !row.Valid() {
			continue
		}
		quotes = append(quotes, row.PriceQuote)
		if row.LastUpdated.After(updated) {
			updated = row.LastUpdated
		}
	}
	if len(quotes) == 0 {
		return nil, time.Time{}, false
	}

	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Price < quotes[j].Price })
	if limit > 0 && len(quotes) > limit {
		quotes = quotes[:limit]
	}
	return quotes, updated, true
}

// Store upserts quotes for an item keyed by (retailer, product URL). Implausible
// and stale rows already stored for the item are purged in the same write.
func (c *PriceCache) Store(ctx context.Context, itemID string, quotes []domain.PriceQuote) error {
	rows, err := c.load(ctx, itemID)
	if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		// an unreadable entry is replaced rather than merged
		c.log.Warn("discarding unreadable price cache entry", logger.String("item_id", itemID), logger.Err(err))
		rows = nil
	}

	now := c.now()
	cutoff := now.Add(-c.freshness)

	index := make(map[string]int, len(rows)+len(quotes))
	merged := make([]cachedQuote, 0, len(rows)+len(quotes))
	upsert := func(row cachedQuote) {
		key := row.Retailer + "\x00" + row.ProductURL
		if i, ok := index[key]; ok {
			merged[i] = row
			return
		}
		index[key] = len(merged)
		merged = append(merged, row)
	}

	for _, row := range rows {
		if row.Valid() && !row.LastUpdated.Before(cutoff) {
			upsert(row)
		}
	}
	for _, q := range quotes {
		if q.Valid() {
			upsert(cachedQuote{PriceQuote: q, LastUpdated: now})
		}
	}

	if len(merged) == 0 {
		return c.cache.Delete(ctx, priceCacheKey(itemID))
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode cached prices: %w", err)
	}
	return c.cache.Set(ctx, priceCacheKey(itemID), data, c.freshness)
}

// Invalidate drops everything stored for an item
func (c *PriceCache) Invalidate(ctx context.Context, itemID string) error {
	return c.cache.Delete(ctx, priceCacheKey(itemID))
}

func (c *PriceCache) load(ctx context.Context, itemID string) ([]cachedQuote, error) {
	data, err := c.cache.Get(ctx, priceCacheKey(itemID))
	if err != nil {
		return nil, err
	}

	var rows []cachedQuote
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode cached prices: %w", err)
	}
	return rows, nil
}

func priceCacheKey(itemID string) string {
	return "prices:" + itemID
}
