// Package app wires configuration, storage, notifications and the HTTP API
// into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rongwang/library-rental/internal/api"
	"github.com/rongwang/library-rental/internal/config"
	"github.com/rongwang/library-rental/internal/metrics"
	"github.com/rongwang/library-rental/internal/notify"
	"github.com/rongwang/library-rental/internal/repository"
	"github.com/rongwang/library-rental/internal/service"
	"github.com/rongwang/library-rental/internal/utils"
)

// App holds the long lived components of a running server
type App struct {
	Config     *config.Config
	Logger     *utils.Logger
	Repository repository.Repository
	Service    service.Service
	Router     *gin.Engine
	Registry   *prometheus.Registry

	db         *sqlx.DB
	redis      *redis.Client
	dispatcher *notify.Dispatcher
}

// New builds the application described by cfg
func New(cfg *config.Config, logger *utils.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.Registry)

	repo, err := a.openRepository()
	if err != nil {
		return nil, err
	}
	a.Repository = repo

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing", "addr", cfg.Redis.Addr, "error", err)
		}
	}

	notifier, err := a.notifier()
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(notifier, notify.DispatcherOptions{
		QueueSize: cfg.Notifier.QueueSize,
		Workers:   cfg.Notifier.Workers,
		Timeout:   cfg.Notifier.Timeout,
	}, logger.With("component", "notify"), m)

	a.Service = service.NewDefaultService(repo, cfg.Auth.JWTSecret,
		service.WithPublisher(a.dispatcher),
		service.WithMetrics(m),
		service.WithLogger(logger.With("component", "service")),
		service.WithTokenDuration(cfg.Auth.TokenDuration),
	)

	handler := api.NewHandler(a.Service, logger.With("component", "api"),
		api.WithRateLimiter(api.NewRateLimiter(a.redis, cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow, logger)),
		api.WithHealthCheck(repo.Ping),
		api.WithGatherer(a.Registry),
	)

	a.Router = gin.New()
	a.Router.Use(gin.Recovery(), api.RequestLogger(logger), api.MetricsMiddleware(m), api.JWTSecret(cfg.Auth.JWTSecret))
	handler.SetupRoutes(a.Router)

	return a, nil
}

func (a *App) openRepository() (repository.Repository, error) {
	switch a.Config.Storage.Driver {
	case "memory":
		a.Logger.Info("using in-memory storage")
		return repository.NewMemoryRepository(), nil
	case "", "postgres":
		db, err := config.SetupDatabase(a.Config, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to set up database: %w", err)
		}
		a.db = db
		return repository.NewPostgresRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", a.Config.Storage.Driver)
	}
}

func (a *App) notifier() (notify.Notifier, error) {
	switch a.Config.Notifier.Driver {
	case "", "log":
		return notify.NewLogNotifier(a.Logger.With("component", "notifier")), nil
	case "redis":
		if a.redis == nil {
			return nil, errors.New("redis notifier requires REDIS_ADDR")
		}
		return notify.NewRedisNotifier(a.redis, a.Config.Notifier.RedisList), nil
	default:
		return nil, fmt.Errorf("unsupported notifier driver %q", a.Config.Notifier.Driver)
	}
}

// Close drains pending notifications and releases connections
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining notifications: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}

	return errors.Join(errs...)
}
