package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qosmon/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func serve(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w
}

// Test that when rate limiting is disabled, middleware lets all requests through.
func TestHTTPRateLimitMiddleware_Disabled_AllowsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false

	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(router, "10.0.0.1:1234").Code)
	}
}

// Test basic per-IP rate limiting behaviour.
func TestHTTPRateLimitMiddleware_Enabled_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 1
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(router, "10.0.0.1:1234").Code)

	w := serve(router, "10.0.0.1:1235")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	// Another client has its own budget.
	assert.Equal(t, http.StatusOK, serve(router, "10.0.0.2:1234").Code)
}

func TestHTTPRateLimitMiddleware_MaxConcurrent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.MaxConcurrent = 1

	entered := make(chan struct{})
	release := make(chan struct{})

	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		if c.Query("block") == "1" {
			close(entered)
			<-release
		}
		c.Status(http.StatusOK)
	})

	done := make(chan int)
	go func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/test?block=1", nil)
		req.RemoteAddr = "10.0.0.1:1"
		router.ServeHTTP(w, req)
		done <- w.Code
	}()
	<-entered

	assert.Equal(t, http.StatusServiceUnavailable, serve(router, "10.0.0.2:1").Code)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, http.StatusOK, serve(router, "10.0.0.2:1").Code)
}

func TestFeedRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.Feed.ConnectionsPerMinute = 2

	router := gin.New()
	router.Use(NewFeedRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(router, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, serve(router, "10.0.0.1:2").Code)

	w := serve(router, "10.0.0.1:3")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "192.0.2.10", clientIP(req))
}

func TestRateLimiterStore_EvictsIdleLimiters(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newRateLimiterStore(rate.Limit(1), 1)
	store.now = func() time.Time { return now }

	store.getLimiter("a")
	store.getLimiter("b")
	assert.Equal(t, 2, store.size())

	now = now.Add(limiterIdleTTL + time.Second)
	store.getLimiter("c")

	assert.Equal(t, 1, store.size())
}
