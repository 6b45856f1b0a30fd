// Package app wires configuration, infrastructure and usecases together.
package app

import (
	"fmt"
	"io"

	"github.com/wishlist/backend/config"
	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/infrastructure/cache"
	"github.com/wishlist/backend/internal/infrastructure/cloudvision"
	"github.com/wishlist/backend/internal/infrastructure/fetcher"
	"github.com/wishlist/backend/internal/infrastructure/gemini"
	"github.com/wishlist/backend/internal/infrastructure/googlesearch"
	"github.com/wishlist/backend/internal/infrastructure/serpapi"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/usecase"
)

// App holds the wired usecases
type App struct {
	Providers  domain.ProviderConfig
	Titles     *usecase.TitleService
	PagePrices *usecase.PagePriceFetcher
	Search     *usecase.PriceSearchService
	Prices     *usecase.PriceComparisonService
	Images     *usecase.ImageRecognizer

	cache domain.CacheRepository
}

// New builds every component from cfg
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	store, err := newCache(cfg, log)
	if err != nil {
		return nil, err
	}

	pages := fetcher.NewClient(fetcher.Options{
		Timeout:       cfg.Fetch.Timeout,
		UserAgent:     cfg.Fetch.UserAgent,
		MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
		RatePerSecond: cfg.Fetch.RatePerSecond,
		Burst:         cfg.Fetch.Burst,
	}, log.With(logger.String("component", "fetcher")))

	shopping := serpapi.NewClient(cfg.Search.SerpAPIBaseURL, cfg.Search.Timeout, log.With(logger.String("component", "serpapi")))
	web := googlesearch.NewClient(cfg.Search.GoogleBaseURL, cfg.Search.Timeout, log.With(logger.String("component", "googlesearch")))
	describer := gemini.NewClient(cfg.Vision.GeminiBaseURL, cfg.Vision.Timeout, log.With(logger.String("component", "gemini")))
	detector := cloudvision.NewClient(cfg.Vision.CloudVisionBaseURL, cfg.Vision.Timeout, log.With(logger.String("component", "cloudvision")))

	titles := usecase.NewTitleService(pages, log)
	pagePrices := usecase.NewPagePriceFetcher(pages, cfg.DefaultCurrency, log)
	search := usecase.NewPriceSearchService(shopping, web, pagePrices, usecase.PriceSearchConfig{
		MinRelevance:         cfg.Search.MinRelevance,
		PageFetchConcurrency: cfg.Search.PageFetchConcurrency,
	}, log)

	prices := usecase.NewPriceComparisonService(
		usecase.NewPriceCache(store, cfg.Cache.TTL, log),
		titles,
		usecase.NewQueryBuilder(log),
		search,
		usecase.PriceComparisonConfig{MaxResults: cfg.Search.MaxResults},
		log,
	)

	return &App{
		Providers:  cfg.Providers(),
		Titles:     titles,
		PagePrices: pagePrices,
		Search:     search,
		Prices:     prices,
		Images:     usecase.NewImageRecognizer(describer, detector, log),
		cache:      store,
	}, nil
}

// Close releases the cache backend
func (a *App) Close() error {
	if closer, ok := a.cache.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func newCache(cfg *config.Config, log logger.Logger) (domain.CacheRepository, error) {
	switch cfg.Cache.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		log.Info("using redis cache", logger.String("prefix", cfg.Cache.KeyPrefix))
		return redisCache, nil
	default:
		log.Info("using in-memory cache")
		return cache.NewMemoryCache(), nil
	}
}
