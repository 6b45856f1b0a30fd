package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/wishlist/backend/config"
	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/infrastructure/cache"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"https://wishlist.example.*", "http://localhost:3000"},
		},
		Cache: config.CacheConfig{
			Type: "memory",
		},
	}
}

// setupTestRouter creates a test router with no usecases wired
func setupTestRouter() *gin.Engine {
	handler := NewHandler(Services{}, domain.ProviderConfig{}, logger.NewNop())
	return SetupRouter(testConfig(), handler, logger.NewNop())
}

// --- Mock implementations for testing with real usecases ---

// mockPageFetcher serves canned pages
type mockPageFetcher struct {
	pages map[string]string
	err   error
}

func (m *mockPageFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if page, ok := m.pages[url]; ok {
		return page, nil
	}
	return "", &domain.FetchError{URL: url, StatusCode: http.StatusNotFound, Err: domain.ErrUpstreamStatus}
}

// mockShoppingSearcher returns fixed shopping results
type mockShoppingSearcher struct {
	results []domain.ShoppingResult
	err     error
	queries []string
}

func (m *mockShoppingSearcher) SearchShopping(ctx context.Context, cfg domain.SearchConfig, query string, limit int) ([]domain.ShoppingResult, error) {
	m.queries = append(m.queries, query)
	return m.results, m.err
}

// mockWebSearcher is never configured in these tests
type mockWebSearcher struct{}

func (mockWebSearcher) SearchWeb(ctx context.Context, cfg domain.SearchConfig, query string, limit int) ([]domain.WebResult, error) {
	return nil, nil
}

// mockDescriber returns a fixed model reply
type mockDescriber struct {
	text string
	err  error
}

func (m *mockDescriber) DescribeProduct(ctx context.Context, cfg domain.VisionConfig, image domain.ImageInput) (string, error) {
	return m.text, m.err
}

// mockLabelDetector returns fixed annotations
type mockLabelDetector struct {
	annotations *domain.LabelAnnotations
	err         error
}

func (m *mockLabelDetector) DetectLabels(ctx context.Context, cfg domain.VisionConfig, image domain.ImageInput) (*domain.LabelAnnotations, error) {
	return m.annotations, m.err
}

type testDeps struct {
	pages     *mockPageFetcher
	shopping  *mockShoppingSearcher
	describer *mockDescriber
	detector  *mockLabelDetector
	providers domain.ProviderConfig
}

func newTestDeps() *testDeps {
	return &testDeps{
		pages:     &mockPageFetcher{pages: map[string]string{}},
		shopping:  &mockShoppingSearcher{},
		describer: &mockDescriber{},
		detector:  &mockLabelDetector{},
		providers: domain.ProviderConfig{
			Search:          domain.SearchConfig{SerpAPIKey: "serp", DefaultCurrency: "GBP"},
			Vision:          domain.VisionConfig{GeminiAPIKey: "gem", CloudVisionAPIKey: "cv"},
			Affiliate:       domain.AffiliateConfig{AmazonAssociateTag: "wishlist-21"},
			DefaultCurrency: "GBP",
		},
	}
}

// setupTestRouterWithServices creates a test router with real usecases over mocks
func setupTestRouterWithServices(t *testing.T, deps *testDeps) *gin.Engine {
	t.Helper()
	log := logger.NewNop()

	memoryCache := cache.NewMemoryCache()
	t.Cleanup(func() { memoryCache.Close() })

	titles := usecase.NewTitleService(deps.pages, log)
	pagePrices := usecase.NewPagePriceFetcher(deps.pages, "GBP", log)
	search := usecase.NewPriceSearchService(deps.shopping, mockWebSearcher{}, pagePrices, usecase.PriceSearchConfig{}, log)
	comparison := usecase.NewPriceComparisonService(
		usecase.NewPriceCache(memoryCache, 0, log),
		titles,
		usecase.NewQueryBuilder(log),
		search,
		usecase.PriceComparisonConfig{MaxResults: 10},
		log,
	)

	handler := NewHandler(Services{
		Titles: titles,
		Images: usecase.NewImageRecognizer(deps.describer, deps.detector, log),
		Prices: comparison,
	}, deps.providers, log)

	return SetupRouter(testConfig(), handler, log)
}

func postJSON(router *gin.Engine, path, payload string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return response
}

// TestHealthCheckEndpoint tests the health check endpoint
func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		response := decodeBody(t, w)
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "wishlist-backend" {
			t.Errorf("service = %v, want wishlist-backend", response["service"])
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		router := setupTestRouter()

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			req, _ := http.NewRequest(method, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupTestRouter()

	req, _ := http.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected prometheus exposition format")
	}
}

// TestUnconfiguredServices tests that missing usecases answer 503
func TestUnconfiguredServices(t *testing.T) {
	router := setupTestRouter()

	endpoints := []struct {
		path    string
		payload string
	}{
		{"/api/v1/products/title", `{"url":"https://shop.example/p"}`},
		{"/api/v1/images/analyze", `{"image":"aGVsbG8="}`},
		{"/api/v1/prices/search", `{"itemId":"item-1","title":"Kettle"}`},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.path, func(t *testing.T) {
			w := postJSON(router, endpoint.path, endpoint.payload)

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
			}
			response := decodeBody(t, w)
			if response["errorReason"] != "not_configured" {
				t.Errorf("errorReason = %v, want not_configured", response["errorReason"])
			}
		})
	}
}

func TestExtractTitleEndpoint(t *testing.T) {
	t.Run("returns title from og:title", func(t *testing.T) {
		deps := newTestDeps()
		deps.pages.pages["https://shop.example/p/1"] = `<html><head>
			<meta property="og:title" content="Sony WH-1000XM5 Wireless Headphones">
			<meta property="og:description" content="Industry leading noise cancelling">
			</head><body></body></html>`
		router := setupTestRouterWithServices(t, deps)

		w := postJSON(router, "/api/v1/products/title", `{"url":"https://shop.example/p/1"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		response := decodeBody(t, w)
		if response["title"] != "Sony WH-1000XM5 Wireless Headphones" {
			t.Errorf("title = %v", response["title"])
		}
		if response["description"] != "Industry leading noise cancelling" {
			t.Errorf("description = %v", response["description"])
		}
		if _, ok := response["errorReason"]; ok {
			t.Errorf("errorReason = %v, want absent", response["errorReason"])
		}
	})

	t.Run("absent description is null", func(t *testing.T) {
		deps := newTestDeps()
		deps.pages.pages["https://widgets.example/acme"] = `<html><head><meta property="og:title" content="Acme Widget 3000"></head></html>`
		router := setupTestRouterWithServices(t, deps)

		w := postJSON(router, "/api/v1/products/title", `{"url":"https://widgets.example/acme"}`)

		if got, want := w.Body.String(), `{"title":"Acme Widget 3000","description":null}`; got != want {
			t.Errorf("body = %s, want %s", got, want)
		}
	})

	t.Run("upstream failure is a structured 200", func(t *testing.T) {
		router := setupTestRouterWithServices(t, newTestDeps())

		w := postJSON(router, "/api/v1/products/title", `{"url":"https://shop.example/missing"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		response := decodeBody(t, w)
		if response["errorReason"] != "extraction_failed" {
			t.Errorf("errorReason = %v, want extraction_failed", response["errorReason"])
		}
		if title, ok := response["title"]; !ok || title != nil {
			t.Errorf("title = %v, want null", title)
		}
		if response["upstreamStatus"] != float64(http.StatusNotFound) {
			t.Errorf("upstreamStatus = %v, want 404", response["upstreamStatus"])
		}
	})

	t.Run("bot wall is flagged", func(t *testing.T) {
		deps := newTestDeps()
		deps.pages.err = &domain.FetchError{URL: "https://shop.example/p", Err: domain.ErrBlocked}
		router := setupTestRouterWithServices(t, deps)

		response := decodeBody(t, postJSON(router, "/api/v1/products/title", `{"url":"https://shop.example/p"}`))
		if response["blocked"] != true {
			t.Errorf("blocked = %v, want true", response["blocked"])
		}
	})

	t.Run("returns 400 for invalid URL", func(t *testing.T) {
		router := setupTestRouterWithServices(t, newTestDeps())

		w := postJSON(router, "/api/v1/products/title", `{"url":"javascript:alert(1)"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("returns 400 for missing url", func(t *testing.T) {
		router := setupTestRouterWithServices(t, newTestDeps())

		w := postJSON(router, "/api/v1/products/title", `{}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestAnalyzeImageEndpoint(t *testing.T) {
	image := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10})

	t.Run("primary recognition", func(t *testing.T) {
		deps := newTestDeps()
		deps.describer.text = "Product: LEGO Technic 42115\nDescription: Lamborghini Sián model kit"
		router := setupTestRouterWithServices(t, deps)

		w := postJSON(router, "/api/v1/images/analyze", `{"image":"data:image/jpeg;base64,`+image+`"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		response := decodeBody(t, w)
		if response["productName"] != "LEGO Technic 42115" {
			t.Errorf("productName = %v", response["productName"])
		}
		if response["methodUsed"] != "primary" {
			t.Errorf("methodUsed = %v, want primary", response["methodUsed"])
		}
	})

	t.Run("primary error falls back", func(t *testing.T) {
		deps := newTestDeps()
		deps.describer.err = domain.ErrProviderError
		deps.detector.annotations = &domain.LabelAnnotations{Labels: []string{"Toy", "Lego"}}
		router := setupTestRouterWithServices(t, deps)

		response := decodeBody(t, postJSON(router, "/api/v1/images/analyze", `{"image":"`+image+`"}`))
		if response["methodUsed"] != "fallback" {
			t.Errorf("methodUsed = %v, want fallback", response["methodUsed"])
		}
		if response["productName"] != "Toy Lego" {
			t.Errorf("productName = %v, want 'Toy Lego'", response["productName"])
		}
	})

	t.Run("no vision provider is 503", func(t *testing.T) {
		deps := newTestDeps()
		deps.providers.Vision = domain.VisionConfig{}
		router := setupTestRouterWithServices(t, deps)

		w := postJSON(router, "/api/v1/images/analyze", `{"image":"`+image+`"}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})

	t.Run("invalid image is 400", func(t *testing.T) {
		router := setupTestRouterWithServices(t, newTestDeps())

		w := postJSON(router, "/api/v1/images/analyze", `{"image":"***"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if decodeBody(t, w)["errorReason"] != "invalid_image" {
			t.Error("expected invalid_image")
		}
	})
}

func TestSearchPricesEndpoint(t *testing.T) {
	t.Run("returns sorted plausible prices then serves from cache", func(t *testing.T) {
		deps := newTestDeps()
		deps.shopping.results = []domain.ShoppingResult{
			{Title: "Kettle", Link: "https://a.example/k", Source: "Argos", Price: "£29.99"},
			{Title: "Kettle", Link: "https://b.example/k", Source: "Currys", Price: "£24.99"},
			{Title: "Kettle", Link: "https://c.example/k", Source: "Junk", Price: "£999999.00"},
		}
		router := setupTestRouterWithServices(t, deps)

		payload := `{"itemId":"item-1","title":"Dualit Architect Kettle"}`
		w := postJSON(router, "/api/v1/prices/search", payload)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		var response struct {
			Prices []domain.PriceQuote `json:"prices"`
			Cached bool                `json:"cached"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if len(response.Prices) != 2 {
			t.Fatalf("len(prices) = %d, want 2", len(response.Prices))
		}
		if response.Prices[0].Retailer != "Currys" || response.Prices[0].Price != 24.99 {
			t.Errorf("cheapest = %+v, want Currys 24.99", response.Prices[0])
		}
		if response.Cached {
			t.Error("cached = true on first search")
		}

		w = postJSON(router, "/api/v1/prices/search", payload)
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if !response.Cached {
			t.Error("cached = false on second search")
		}
		if len(deps.shopping.queries) != 1 {
			t.Errorf("provider called %d times, want 1", len(deps.shopping.queries))
		}
	})

	t.Run("no results carries a message", func(t *testing.T) {
		router := setupTestRouterWithServices(t, newTestDeps())

		response := decodeBody(t, postJSON(router, "/api/v1/prices/search", `{"itemId":"item-2","title":"Kettle"}`))
		if response["message"] != "No prices found for this product" {
			t.Errorf("message = %v", response["message"])
		}
		if prices, ok := response["prices"].([]interface{}); !ok || len(prices) != 0 {
			t.Errorf("prices = %v, want []", response["prices"])
		}
	})

	t.Run("provider down is a structured 200", func(t *testing.T) {
		deps := newTestDeps()
		deps.shopping.err = domain.ErrProviderError
		router := setupTestRouterWithServices(t, deps)

		w := postJSON(router, "/api/v1/prices/search", `{"itemId":"item-3","title":"Kettle"}`)
		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if decodeBody(t, w)["message"] != "Price search is temporarily unavailable" {
			t.Error("expected unavailable message")
		}
	})

	t.Run("no search provider is 503", func(t *testing.T) {
		deps := newTestDeps()
		deps.providers.Search = domain.SearchConfig{}
		router := setupTestRouterWithServices(t, deps)

		w := postJSON(router, "/api/v1/prices/search", `{"itemId":"item-4","title":"Kettle"}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})

	t.Run("returns 400 for missing itemId", func(t *testing.T) {
		router := setupTestRouterWithServices(t, newTestDeps())

		w := postJSON(router, "/api/v1/prices/search", `{"title":"Kettle"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("returns 400 for nothing to search", func(t *testing.T) {
		router := setupTestRouterWithServices(t, newTestDeps())

		w := postJSON(router, "/api/v1/prices/search", `{"itemId":"item-5"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("returns 400 for invalid JSON", func(t *testing.T) {
		router := setupTestRouterWithServices(t, newTestDeps())

		w := postJSON(router, "/api/v1/prices/search", `{invalid json}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestPriceConfigEndpoint(t *testing.T) {
	deps := newTestDeps()
	deps.providers.Search = domain.SearchConfig{GoogleAPIKey: "g", GoogleSearchEngineID: "cx"}
	router := setupTestRouterWithServices(t, deps)

	req, _ := http.NewRequest("GET", "/api/v1/prices/config", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	response := decodeBody(t, w)
	if response["configured"] != true {
		t.Errorf("configured = %v, want true", response["configured"])
	}
	if response["provider"] != "google" {
		t.Errorf("provider = %v, want google", response["provider"])
	}
	if strings.Contains(w.Body.String(), "cx") || strings.Contains(w.Body.String(), `"g"`) {
		t.Error("config response leaks credentials")
	}
}

func TestAffiliateLinkEndpoint(t *testing.T) {
	router := setupTestRouterWithServices(t, newTestDeps())

	response := decodeBody(t, postJSON(router, "/api/v1/links/affiliate", `{"url":"https://www.amazon.co.uk/dp/B0C8PSRWFM"}`))
	if response["affiliateUrl"] != "https://www.amazon.co.uk/dp/B0C8PSRWFM?tag=wishlist-21" {
		t.Errorf("affiliateUrl = %v", response["affiliateUrl"])
	}
	if response["converted"] != true {
		t.Errorf("converted = %v, want true", response["converted"])
	}

	w := postJSON(router, "/api/v1/links/affiliate", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// TestCORSIntegration tests CORS headers work end-to-end with full router
func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for the web app", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://wishlist.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://wishlist.example.com" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://wishlist.example.com")
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
		}
	})

	t.Run("api endpoint has CORS for localhost", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("POST", "/api/v1/prices/search", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
		}
		if w.Header().Get(requestIDHeader) == "" {
			t.Error("expected X-Request-ID header")
		}
	})
}

// TestAPIVersioning tests that API v1 routes are correctly versioned
func TestAPIVersioning(t *testing.T) {
	router := setupTestRouter()

	for _, path := range []string{"/api/prices/search", "/prices/search", "/api/v1/prices"} {
		w := postJSON(router, path, `{}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("Path %s: Status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}

// TestJSONResponses tests that all responses are valid JSON
func TestJSONResponses(t *testing.T) {
	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/api/v1/prices/config"},
		{"POST", "/api/v1/prices/search"},
		{"POST", "/api/v1/links/affiliate"},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			router := setupTestRouter()

			req, _ := http.NewRequest(endpoint.method, endpoint.path, nil)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			wantContentType := "application/json; charset=utf-8"
			if got := w.Header().Get("Content-Type"); got != wantContentType {
				t.Errorf("Content-Type = %q, want %q", got, wantContentType)
			}

			var response map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Errorf("Response should be valid JSON, got error: %v", err)
			}
		})
	}
}
