package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-relations/internal/api/http"
	"github.com/spec-kit/ticket-relations/internal/api/http/handlers"
	"github.com/spec-kit/ticket-relations/internal/auth"
	"github.com/spec-kit/ticket-relations/internal/config"
	"github.com/spec-kit/ticket-relations/internal/events"
	"github.com/spec-kit/ticket-relations/internal/observability"
	"github.com/spec-kit/ticket-relations/internal/persistence"
	"github.com/spec-kit/ticket-relations/internal/repository"
	"github.com/spec-kit/ticket-relations/internal/repository/memory"
	"github.com/spec-kit/ticket-relations/internal/service"
	"github.com/spec-kit/ticket-relations/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthDeps := map[string]handlers.Pinger{}

	var store repository.Store
	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
		healthDeps["postgres"] = pg
	} else {
		logger.Warn("POSTGRES_DSN not set; using in-memory store")
		store = memory.NewStore()
	}

	var locker persistence.TicketLocker
	switch cfg.Relations.LockBackend {
	case config.LockBackendRedis:
		redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()
		locker = persistence.NewRedisTicketLocker(redis.Client, cfg.Relations.LockTTL(), cfg.Relations.LockWait(), logger)
		healthDeps["redis"] = redis
	default:
		locker = persistence.NewLocalTicketLocker(cfg.Relations.LockWait())
	}

	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(dispatcher, logger, service.SendersFromConfig(cfg.Notification, logger)...)
	worker.StartNotificationWorker(notifications)

	deps := service.Dependencies{
		Store:      store,
		Locker:     locker,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Config:     cfg.Relations,
	}
	validator := service.NewRelationshipValidator(cfg.Relations.DeepCycleCheck, cfg.Relations.MaxCycleDepth)
	relationshipService := service.NewRelationshipService(deps, validator)
	splitService := service.NewSplitService(deps)
	mergeService := service.NewMergeService(deps)
	historyService := service.NewHistoryService(deps)

	integrity := worker.NewIntegrityWorker(store.Relationships(), metrics, logger, cfg.Integrity, nil)
	if err := integrity.Start(cfg.Integrity.Schedule); err != nil {
		logger.Fatal("failed to start integrity sweep", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Relationships:  handlers.NewRelationshipsHandler(relationshipService),
		Tickets:        handlers.NewTicketsHandler(splitService, mergeService, historyService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       prometheus.DefaultGatherer,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	<-integrity.Stop().Done()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
