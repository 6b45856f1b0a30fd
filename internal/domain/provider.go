package domain

// SearchProvider identifies a price search provider
type SearchProvider string

const (
	SearchProviderSerpAPI SearchProvider = "serpapi"
	SearchProviderGoogle  SearchProvider = "google"
)

// VisionProvider identifies an image recognition provider
type VisionProvider string

const (
	VisionProviderGemini      VisionProvider = "gemini"
	VisionProviderCloudVision VisionProvider = "cloud_vision"
)

// ProviderConfig is resolved once from deployment secrets and passed by value
// into every component call. Components never read the environment themselves.
type ProviderConfig struct {
	Vision          VisionConfig
	Search          SearchConfig
	Affiliate       AffiliateConfig
	DefaultCurrency string
}

// VisionConfig holds credentials for the image recognition chain
type VisionConfig struct {
	GeminiAPIKey      string
	GeminiModel       string
	CloudVisionAPIKey string
}

// PrimaryConfigured reports whether the vision-language model can be used
func (c VisionConfig) PrimaryConfigured() bool {
	return c.GeminiAPIKey != ""
}

// FallbackConfigured reports whether the label-detection API can be used
func (c VisionConfig) FallbackConfigured() bool {
	return c.CloudVisionAPIKey != ""
}

// Selected returns the provider tried first, or "" when none is configured
func (c VisionConfig) Selected() VisionProvider {
	switch {
	case c.PrimaryConfigured():
		return VisionProviderGemini
	case c.FallbackConfigured():
		return VisionProviderCloudVision
	default:
		return ""
	}
}

// SearchConfig holds credentials and tuning for the price search providers
type SearchConfig struct {
	SerpAPIKey           string
	GoogleAPIKey         string
	GoogleSearchEngineID string
	Country              string
	DefaultCurrency      string
}

// ShoppingConfigured reports whether the shopping-search provider can be used
func (c SearchConfig) ShoppingConfigured() bool {
	return c.SerpAPIKey != ""
}

// WebConfigured reports whether the generic web-search provider can be used
func (c SearchConfig) WebConfigured() bool {
	return c.GoogleAPIKey != "" && c.GoogleSearchEngineID != ""
}

// Selected returns the provider tried first, or "" when none is configured
func (c SearchConfig) Selected() SearchProvider {
	switch {
	case c.ShoppingConfigured():
		return SearchProviderSerpAPI
	case c.WebConfigured():
		return SearchProviderGoogle
	default:
		return ""
	}
}

// AffiliateConfig holds affiliate programme identifiers
type AffiliateConfig struct {
	AmazonAssociateTag string
}

// ProviderStatus describes which providers are available to operators
type ProviderStatus struct {
	PriceSearchConfigured bool            `json:"configured"`
	PriceSearchProvider   SearchProvider  `json:"provider,omitempty"`
	VisionConfigured      bool            `json:"visionConfigured"`
	VisionProvider        VisionProvider  `json:"visionProvider,omitempty"`
	Providers             map[string]bool `json:"providers"`
}

// Status summarizes the configuration without exposing any secret
func (c ProviderConfig) Status() ProviderStatus {
	return ProviderStatus{
		PriceSearchConfigured: c.Search.Selected() != "",
		PriceSearchProvider:   c.Search.Selected(),
		VisionConfigured:      c.Vision.Selected() != "",
		VisionProvider:        c.Vision.Selected(),
		Providers: map[string]bool{
			string(SearchProviderSerpAPI):     c.Search.ShoppingConfigured(),
			string(SearchProviderGoogle):      c.Search.WebConfigured(),
			string(VisionProviderGemini):      c.Vision.PrimaryConfigured(),
			string(VisionProviderCloudVision): c.Vision.FallbackConfigured(),
		},
	}
}
