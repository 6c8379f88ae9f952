package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-collect-sync/internal/fields"
	"github.com/noah-isme/sma-collect-sync/internal/handler"
	"github.com/noah-isme/sma-collect-sync/internal/remote"
	"github.com/noah-isme/sma-collect-sync/internal/repository"
	"github.com/noah-isme/sma-collect-sync/internal/service"
	"github.com/noah-isme/sma-collect-sync/pkg/cache"
	"github.com/noah-isme/sma-collect-sync/pkg/config"
	"github.com/noah-isme/sma-collect-sync/pkg/database"
	"github.com/noah-isme/sma-collect-sync/pkg/jobs"
	"github.com/noah-isme/sma-collect-sync/pkg/locks"
	"github.com/noah-isme/sma-collect-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-collect-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-collect-sync/pkg/middleware/requestid"
	"github.com/noah-isme/sma-collect-sync/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewSQLite(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to open offline store", "error", err)
	}
	defer db.Close() //nolint:errcheck

	staging, err := storage.NewStagingStore(cfg.Files.StagingDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init attachment staging", "error", err)
	}

	var redisClient *redis.Client
	locker := locks.Locker(locks.NewMemoryLocker())
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, using in-process locks", "error", err)
		} else {
			locker = locks.NewRedisLocker(redisClient, cfg.Sync.LockTTL)
		}
	}

	actionRepo := repository.NewOfflineActionRepository(db, staging)
	syncTimeRepo := repository.NewSyncTimeRepository(db)

	registry := fields.NewBuiltinRegistry()
	remoteStore := remote.NewClient(cfg.Remote, logr)
	events := service.NewDispatcher()
	metrics := service.NewMetricsService()

	projector := service.NewProjector(registry, staging)
	fetcherOpts := []service.FetcherOption{}
	if redisClient != nil {
		fetcherOpts = append(fetcherOpts, service.WithPageCache(redisClient, cfg.Sync.PageCache))
	}
	fetcher := service.NewFetcher(actionRepo, remoteStore, projector, nil, logr, fetcherOpts...)

	reconciler := service.NewReconciler(actionRepo, remoteStore, staging, registry, metrics, logr)
	coordinator := service.NewCoordinator(actionRepo, syncTimeRepo, remoteStore, reconciler, locker, events, logr,
		service.WithMetrics(metrics),
		service.WithMinInterval(cfg.Sync.MinInterval),
		service.WithPageInvalidator(fetcher),
	)
	actions := service.NewActions(actionRepo, remoteStore, registry, staging, nil, events, logr)

	queue := jobs.NewQueue("sync", func(ctx context.Context, job jobs.Job) error {
		if job.CollectionID != 0 {
			_, err := coordinator.SyncCollection(ctx, job.CollectionID)
			return err
		}
		_, err := coordinator.SyncAll(ctx, job.Force)
		return err
	}, jobs.QueueConfig{Workers: cfg.Sync.Workers, Logger: logr})
	queue.Start(ctx)
	defer queue.Stop()
	queue.ScheduleEvery(ctx, cfg.Sync.Interval)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	syncHandler := handler.NewSyncHandler(remoteStore, coordinator, fetcher, actions, actionRepo)
	syncHandler.Register(r)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Remote.Timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Sugar().Warnw("server shutdown failed", "error", err)
		}
	}()

	logr.Sugar().Infow("agent starting", "addr", server.Addr, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
