package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rongwang/library-rental/internal/service"
	"github.com/rongwang/library-rental/internal/utils"
)

// Handler serves the HTTP API on top of a Service
type Handler struct {
	service     service.Service
	logger      *utils.Logger
	rateLimiter *RateLimiter
	healthCheck func(ctx context.Context) error
	gatherer    prometheus.Gatherer
}

// HandlerOption customizes a Handler
type HandlerOption func(*Handler)

// WithRateLimiter limits the authentication endpoints
func WithRateLimiter(l *RateLimiter) HandlerOption {
	return func(h *Handler) { h.rateLimiter = l }
}

// WithHealthCheck makes /health report the result of check
func WithHealthCheck(check func(ctx context.Context) error) HandlerOption {
	return func(h *Handler) { h.healthCheck = check }
}

// WithGatherer exposes the collectors of g on /metrics
func WithGatherer(g prometheus.Gatherer) HandlerOption {
	return func(h *Handler) { h.gatherer = g }
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service, logger *utils.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = utils.Discard()
	}

	h := &Handler{
		service: svc,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// SetupRoutes registers all routes on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")

	auth := api.Group("/auth")
	auth.Use(h.rateLimiter.Middleware())
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/login", h.Login)
	}

	protected := api.Group("")
	protected.Use(AuthMiddleware())
	{
		protected.GET("/categories", h.ListCategories)
		protected.POST("/categories", h.CreateCategory)

		protected.GET("/books", h.ListBooks)
		protected.POST("/books", h.CreateBook)
		protected.GET("/books/:id", h.GetBook)
		protected.PUT("/books/:id/price", h.UpdateBookPrice)
		protected.POST("/books/:id/borrow", h.Borrow)
		protected.GET("/books/:id/reviews", h.ListReviews)
		protected.POST("/books/:id/reviews", h.AddReview)

		protected.GET("/account", h.GetAccount)
		protected.POST("/account/deposit", h.Deposit)
		protected.GET("/account/deposits", h.ListDeposits)

		protected.GET("/transactions", h.ListTransactions)
		protected.GET("/transactions/:id", h.GetTransaction)
		protected.POST("/transactions/:id/return", h.Return)
		protected.GET("/history", h.BorrowHistory)
	}
}

// Health reports whether the storage backend is reachable
func (h *Handler) Health(c *gin.Context) {
	if h.healthCheck != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.healthCheck(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
