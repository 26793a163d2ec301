package router

import (
	"context"
	"fmt"
	"time"

	"signup-service/internal/api/handlers"
	"signup-service/internal/config"
	"signup-service/internal/domain/user"
	"signup-service/internal/infrastructure/cache"
	"signup-service/internal/infrastructure/database"
	"signup-service/internal/infrastructure/notification"
	"signup-service/internal/infrastructure/payment"
	"signup-service/internal/infrastructure/queue"
	"signup-service/internal/infrastructure/repository"
	interfaces "signup-service/internal/interfaces/infrastructure"
	"signup-service/internal/metrics"
	"signup-service/internal/service"
	"signup-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Components is the wired application. Router is nil when built with
// NewComponents for a worker-only process.
type Components struct {
	Router        *gin.Engine
	QueueService  interfaces.QueueService
	SignUpService *service.SignUpService
	UserService   user.UserService

	cache interfaces.CacheService
	redis redis.UniversalClient
}

// NewSignUpRouter wires the service and mounts it on a gin engine. Workers
// are not started; the caller owns their lifecycle.
func NewSignUpRouter(db *gorm.DB, cfg *config.Config) (*Components, error) {
	components, err := NewComponents(db, cfg)
	if err != nil {
		return nil, err
	}

	checks := map[string]handlers.HealthChecker{
		"database": func(ctx context.Context) error { return database.HealthCheck(ctx, db) },
	}
	if components.cache != nil {
		checks["cache"] = components.cache.Health
	}

	components.Router = NewRouter(Handlers{
		SignUp: handlers.NewSignUpHandler(components.SignUpService),
		User:   handlers.NewUserHandler(components.UserService),
		Health: handlers.NewHealthHandler(checks, components.QueueService),
	})
	return components, nil
}

// NewComponents builds repositories, cache, queue, notifier and services
// from configuration.
func NewComponents(db *gorm.DB, cfg *config.Config) (*Components, error) {
	metrics.Register()

	c := &Components{}
	if needsRedis(cfg) {
		c.redis = cache.NewClient(cache.ClientOptions{
			Addr:          cfg.Cache.Addr(),
			Password:      cfg.Cache.Password,
			DB:            cfg.Cache.DB,
			PoolSize:      cfg.Cache.PoolSize,
			MasterName:    cfg.Cache.MasterName,
			SentinelAddrs: cfg.Cache.SentinelAddrs,
		})
	}

	switch cfg.Cache.Type {
	case "redis":
		c.cache = cache.NewRedisCacheWithClient(c.redis, cfg.Queue.KeyPrefix+":cache")
		logger.Info("Using Redis cache")
	case "memory":
		c.cache = cache.NewMemoryCache()
		logger.Info("Using in-memory cache")
	case "none", "":
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Cache.Type)
	}

	var userRepo user.UserRepository = repository.NewUserRepository(db)
	if c.cache != nil {
		userRepo = repository.NewCachedUserRepository(userRepo, c.cache, time.Duration(cfg.Cache.UserTTL)*time.Second)
	}
	memberRepo := repository.NewMembershipRepository(db)

	policy := queue.RetryPolicy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelay:   cfg.Queue.RetryDelay(),
		MaxDelay:    time.Minute,
	}
	switch cfg.Queue.Type {
	case "redis":
		c.QueueService = queue.NewRedisQueue(c.redis, cfg.Queue.KeyPrefix, cfg.Queue.Workers, policy, cfg.Queue.PollInterval())
		logger.Info("Using Redis queue service")
	case "memory":
		c.QueueService = queue.NewInMemoryQueue(cfg.Queue.BufferSize, cfg.Queue.Workers, policy)
		logger.Info("Using in-memory queue service")
	case "database", "":
		c.QueueService = queue.NewDatabaseQueue(db, cfg.Queue.Workers, policy, cfg.Queue.PollInterval(), cfg.Queue.Visibility())
		logger.Info("Using database queue service")
	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Queue.Type)
	}

	var notifier interfaces.Notifier
	switch cfg.Notification.Type {
	case "redis":
		notifier = notification.NewRedisMailNotifier(c.redis, cfg.Notification.ListKey)
	default:
		notifier = notification.NewLogNotifier()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	c.SignUpService = service.NewSignUpService(service.Dependencies{
		Events:      repository.NewEventRepository(db),
		SignUps:     repository.NewSignUpRepository(db),
		Stats:       repository.NewStatsRepository(sqlDB, repository.SQLDriverName(cfg.Database.Driver)),
		Users:       userRepo,
		Memberships: memberRepo,
		Queue:       c.QueueService,
		Notifier:    notifier,
		Orders:      payment.NewLedgerOrderService(),
	}, service.Options{
		MaxRetries:  cfg.SignUp.MaxRetries,
		BackoffBase: cfg.SignUp.BackoffBase(),
		BackoffMax:  cfg.SignUp.BackoffMax(),
	})
	c.UserService = service.NewUserService(userRepo, memberRepo)

	c.QueueService.SetPromotionHandler(c.SignUpService)
	return c, nil
}

// Close releases the shared Redis client. The Redis cache wraps the same
// client, so it is not closed separately.
func (c *Components) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Cache.Type == "redis" || cfg.Queue.Type == "redis" || cfg.Notification.Type == "redis"
}
