package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/rongwang/library-rental/internal/utils"
)

// RateLimiter is a fixed-window limiter keyed by client IP and backed by Redis
// INCR/EXPIRE. Without a client, or when Redis fails, requests are allowed.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	logger *utils.Logger
}

// NewRateLimiter allows limit requests per window. client may be nil.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, logger *utils.Logger) *RateLimiter {
	if logger == nil {
		logger = utils.Discard()
	}
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":",
		logger: logger,
	}
}

// Middleware limits the routes it is attached to
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.client == nil || l.limit <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := l.prefix + c.FullPath() + ":" + c.ClientIP()

		count, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			l.logger.WarnContext(ctx, "rate limiter unavailable", "error", err)
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}

		if count == 1 {
			if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
				l.logger.WarnContext(ctx, "rate limiter expire failed", "key", key, "error", err)
			}
		}

		remaining := int64(l.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(l.limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Status:  "error",
				Code:    "RATE_LIMITED",
				Message: "Too many requests, try again later",
			})
			return
		}

		c.Next()
	}
}
