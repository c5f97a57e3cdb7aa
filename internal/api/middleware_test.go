package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func limitedRouter(limiter *RateLimiter) *gin.Engine {
	router := gin.New()
	router.POST("/login", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func post(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiterWithoutRedis(t *testing.T) {
	router := limitedRouter(NewRateLimiter(nil, 1, time.Minute, nil))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, post(router, "/login").Code)
	}

	var nilLimiter *RateLimiter
	assert.Equal(t, http.StatusOK, post(limitedRouter(nilLimiter), "/login").Code)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	// Nothing listens on this port
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	w := post(limitedRouter(NewRateLimiter(client, 1, time.Minute, nil)), "/login")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "redis-error", w.Header().Get("X-RateLimit-Error"))
}

// Runs only if REDIS_ADDR is set.
func TestRateLimiterRedisIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	defer client.Close()

	limiter := NewRateLimiter(client, 2, time.Minute, nil)
	limiter.prefix = "rl:test:" + time.Now().Format("150405.000000") + ":"
	defer func() {
		keys, _ := client.Keys(context.Background(), limiter.prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
	}()

	router := limitedRouter(limiter)
	assert.Equal(t, http.StatusOK, post(router, "/login").Code)

	w := post(router, "/login")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = post(router, "/login")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "middleware-secret"

	router := gin.New()
	router.Use(JWTSecret(secret))
	router.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, currentUser(c))
	})

	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	valid := sign(jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + valid, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "user-1"}), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}), http.StatusUnauthorized},
		{"missing subject", "Bearer " + sign(jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}), http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "user-1", w.Body.String())
			}
		})
	}
}
