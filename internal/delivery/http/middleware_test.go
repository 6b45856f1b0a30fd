package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/wishlist/backend/internal/logger"
)

func TestIsAllowedOrigin(t *testing.T) {
	webApp := []string{"https://wishlist.example.*", "http://localhost:3000"}

	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"exact", "http://localhost:3000", webApp, true},
		{"wildcard suffix", "https://wishlist.example.com", webApp, true},
		{"short wildcard", "https://wishlist.example.com", []string{"https://wish*"}, true},
		{"exact does not prefix match", "http://localhost:30001", []string{"http://localhost:3000"}, false},
		{"unknown origin", "https://evil.test", webApp, false},
		{"no origin", "", webApp, false},
		{"nothing allowed", "https://wishlist.example.com", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAllowedOrigin(tt.origin, tt.allowed))
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://wishlist.example.*"}))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	tests := []struct {
		name       string
		origin     string
		method     string
		wantStatus int
		wantOrigin string
	}{
		{"allowed GET", "https://wishlist.example.com", "GET", http.StatusOK, "https://wishlist.example.com"},
		{"allowed preflight", "https://wishlist.example.com", "OPTIONS", http.StatusNoContent, "https://wishlist.example.com"},
		{"disallowed origin", "https://evil.test", "GET", http.StatusOK, ""},
		{"same-origin request", "", "GET", http.StatusOK, ""},
		// preflight is answered even for unknown origins, just without CORS headers
		{"disallowed preflight", "https://evil.test", "OPTIONS", http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, requestIDHeader, w.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

func TestCORSMiddleware_PreflightRequest(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://wishlist.example.*"}))
	router.POST("/api/v1/prices/search", func(c *gin.Context) {
		t.Error("preflight reached the handler")
	})

	req := httptest.NewRequest("OPTIONS", "/api/v1/prices/search", nil)
	req.Header.Set("Origin", "https://wishlist.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(requestIDKey))
	})

	t.Run("generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		id := w.Header().Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("X-Request-ID = %q, want a uuid", id)
		}
		if w.Body.String() != id {
			t.Errorf("context id = %q, want %q", w.Body.String(), id)
		}
	})

	t.Run("keeps caller id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(requestIDHeader, "caller-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get(requestIDHeader); got != "caller-123" {
			t.Errorf("X-Request-ID = %q, want caller-123", got)
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RateLimitMiddleware(2))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	send := func(ip string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("10.0.0.1"); code != http.StatusOK {
		t.Errorf("first request status = %d, want 200", code)
	}
	if code := send("10.0.0.1"); code != http.StatusOK {
		t.Errorf("second request status = %d, want 200", code)
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", code)
	}
	if code := send("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", code)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(RateLimitMiddleware(0))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
}

func TestIPRateLimiter_DropsIdleVisitors(t *testing.T) {
	limiter := newIPRateLimiter(1)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	if !limiter.allow("10.0.0.1") {
		t.Fatal("first request should be allowed")
	}
	if limiter.allow("10.0.0.1") {
		t.Fatal("second request should be limited")
	}

	now = now.Add(visitorIdleTTL + time.Second)
	limiter.allow("10.0.0.2")

	if _, ok := limiter.visitors["10.0.0.1"]; ok {
		t.Error("idle visitor was not dropped")
	}
}

func TestIPRateLimiter_SweepsAtMostOncePerInterval(t *testing.T) {
	limiter := newIPRateLimiter(60)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.allow("10.0.0.1")
	swept := limiter.lastSweep

	// an idle visitor survives until the next sweep is due
	limiter.visitors["10.0.0.9"] = &visitor{lastSeen: now.Add(-2 * visitorIdleTTL)}
	now = now.Add(visitorSweepInterval / 2)
	limiter.allow("10.0.0.1")

	if !limiter.lastSweep.Equal(swept) {
		t.Error("swept again before the interval elapsed")
	}
	if _, ok := limiter.visitors["10.0.0.9"]; !ok {
		t.Error("visitor dropped outside a sweep")
	}

	now = now.Add(visitorSweepInterval)
	limiter.allow("10.0.0.1")

	if _, ok := limiter.visitors["10.0.0.9"]; ok {
		t.Error("idle visitor survived a due sweep")
	}
	if _, ok := limiter.visitors["10.0.0.1"]; !ok {
		t.Error("active visitor was dropped")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RecoveryMiddleware(logger.NewNop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
