package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/wishlist/backend/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server          ServerConfig
	Log             LogConfig
	Fetch           FetchConfig
	Vision          VisionConfig
	Search          SearchConfig
	Cache           CacheConfig
	RateLimit       RateLimitConfig
	Affiliate       AffiliateConfig
	DefaultCurrency string `mapstructure:"default_currency"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// FetchConfig holds settings for product page fetches
type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// VisionConfig holds image recognition provider configuration
type VisionConfig struct {
	GeminiAPIKey       string        `mapstructure:"gemini_api_key"`
	GeminiModel        string        `mapstructure:"gemini_model"`
	GeminiBaseURL      string        `mapstructure:"gemini_base_url"`
	CloudVisionAPIKey  string        `mapstructure:"cloud_vision_api_key"`
	CloudVisionBaseURL string        `mapstructure:"cloud_vision_base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// SearchConfig holds price search provider configuration
type SearchConfig struct {
	SerpAPIKey           string        `mapstructure:"serpapi_key"`
	SerpAPIBaseURL       string        `mapstructure:"serpapi_base_url"`
	GoogleAPIKey         string        `mapstructure:"google_api_key"`
	GoogleSearchEngineID string        `mapstructure:"google_search_engine_id"`
	GoogleBaseURL        string        `mapstructure:"google_base_url"`
	Country              string        `mapstructure:"country"`
	MaxResults           int           `mapstructure:"max_results"`
	MinRelevance         float64       `mapstructure:"min_relevance"`
	PageFetchConcurrency int           `mapstructure:"page_fetch_concurrency"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type      string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL  string        `mapstructure:"redis_url"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// AffiliateConfig holds affiliate programme identifiers
type AffiliateConfig struct {
	AmazonTag string `mapstructure:"amazon_tag"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/wishlist/")

	// WISHLIST_SEARCH_SERPAPI_KEY -> search.serpapi_key
	v.SetEnvPrefix("WISHLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; env vars and defaults are enough
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory when present. Variables that
// are already set in the environment win.
func loadEnvFile() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// setDefaults sets default configuration values. Every key gets a default,
// even an empty one, so that AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")

	// Page fetch defaults
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("fetch.rate_per_second", 5)
	v.SetDefault("fetch.burst", 5)

	// Vision providers
	v.SetDefault("vision.gemini_api_key", "")
	v.SetDefault("vision.gemini_model", "gemini-2.5-flash")
	v.SetDefault("vision.gemini_base_url", "")
	v.SetDefault("vision.cloud_vision_api_key", "")
	v.SetDefault("vision.cloud_vision_base_url", "https://vision.googleapis.com")
	v.SetDefault("vision.timeout", "30s")

	// Search providers
	v.SetDefault("search.serpapi_key", "")
	v.SetDefault("search.serpapi_base_url", "https://serpapi.com")
	v.SetDefault("search.google_api_key", "")
	v.SetDefault("search.google_search_engine_id", "")
	v.SetDefault("search.google_base_url", "https://www.googleapis.com")
	v.SetDefault("search.country", "uk")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.min_relevance", 0)
	v.SetDefault("search.page_fetch_concurrency", 4)
	v.SetDefault("search.timeout", "20s")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "wishlist:")
	v.SetDefault("cache.ttl", "24h")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 60)

	v.SetDefault("affiliate.amazon_tag", "")
	v.SetDefault("default_currency", "GBP")
}

// validate validates the configuration. Missing provider credentials are not an
// error: the affected features report not_configured instead.
func validate(config *Config) error {
	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.Search.MaxResults <= 0 {
		return fmt.Errorf("search max_results must be positive, got: %d", config.Search.MaxResults)
	}

	if config.Search.MinRelevance < 0 || config.Search.MinRelevance > 100 {
		return fmt.Errorf("search min_relevance must be between 0 and 100, got: %v", config.Search.MinRelevance)
	}

	if len(config.DefaultCurrency) != 3 {
		return fmt.Errorf("default currency must be an ISO 4217 code, got: %q", config.DefaultCurrency)
	}
	config.DefaultCurrency = strings.ToUpper(config.DefaultCurrency)

	return nil
}

// Providers resolves the provider credentials handed to every extraction call
func (c *Config) Providers() domain.ProviderConfig {
	return domain.ProviderConfig{
		Vision: domain.VisionConfig{
			GeminiAPIKey:      c.Vision.GeminiAPIKey,
			GeminiModel:       c.Vision.GeminiModel,
			CloudVisionAPIKey: c.Vision.CloudVisionAPIKey,
		},
		Search: domain.SearchConfig{
			SerpAPIKey:           c.Search.SerpAPIKey,
			GoogleAPIKey:         c.Search.GoogleAPIKey,
			GoogleSearchEngineID: c.Search.GoogleSearchEngineID,
			Country:              c.Search.Country,
			DefaultCurrency:      c.DefaultCurrency,
		},
		Affiliate: domain.AffiliateConfig{
			AmazonAssociateTag: c.Affiliate.AmazonTag,
		},
		DefaultCurrency: c.DefaultCurrency,
	}
}
