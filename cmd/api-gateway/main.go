package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/timetable-engine/api/swagger"
	"github.com/noah-isme/timetable-engine/internal/handler"
	internalmiddleware "github.com/noah-isme/timetable-engine/internal/middleware"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/repository"
	"github.com/noah-isme/timetable-engine/internal/service"
	"github.com/noah-isme/timetable-engine/pkg/cache"
	"github.com/noah-isme/timetable-engine/pkg/config"
	"github.com/noah-isme/timetable-engine/pkg/database"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
	"github.com/noah-isme/timetable-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-engine/pkg/middleware/requestid"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

// @title Timetable Engine API
// @version 1.0.0
// @description Weekly term timetable generation with cross-term teacher conflict avoidance.
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	var (
		db       *sqlx.DB
		runRepo  *repository.TimetableRepository
		jobStore *repository.ExportRepository
	)
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect database", zap.Error(err))
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			logr.Fatal("failed to apply schema", zap.Error(err))
		}
		runRepo = repository.NewTimetableRepository(db)
		jobStore = repository.NewExportRepository(db)
		checks["database"] = db.PingContext
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		}
	}
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Redis.CacheTTL, logr, redisClient != nil)

	validate := validator.New()
	timetableSvc, err := newTimetableService(runRepo, db, cacheSvc, metrics, validate, logr, cfg)
	if err != nil {
		logr.Fatal("invalid scheduler configuration", zap.Error(err))
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	exportSvc := service.NewTimetableExportService(
		timetableSvc,
		exportJobs(jobStore),
		files,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		nil,
		metrics,
		logr,
		service.TimetableExportConfig{
			APIPrefix:     cfg.APIPrefix,
			DefaultFormat: models.ExportFormat(cfg.Exports.DefaultFormat),
			ResultTTL:     cfg.Exports.SignedURLTTL,
		},
	)
	queue := jobs.NewQueue[service.ExportPayload]("timetable-exports", exportSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
		OnGiveUp:   exportSvc.GiveUp,
	})
	queue.Start(ctx)
	defer queue.Stop()
	exportSvc.AttachQueue(queue)

	go sweep(ctx, logr, time.Hour, func() {
		removed, err := exportSvc.Cleanup()
		if err != nil {
			logr.Warn("export cleanup failed", zap.Error(err))
		} else if len(removed) > 0 {
			logr.Info("expired exports removed", zap.Int("files", len(removed)))
		}
		if n := timetableSvc.Sweep(); n > 0 {
			logr.Debug("expired runs dropped", zap.Int("runs", n))
		}
	})

	tokens := service.NewTokenService(cfg.JWT)
	timetableHandler := handler.NewTimetableHandler(timetableSvc, exportSvc, logr)
	systemHandler := handler.NewSystemHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", systemHandler.Health)
	r.GET("/ready", systemHandler.Ready)
	r.GET("/metrics", systemHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/exports/download/:token", timetableHandler.Download)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(tokens))
	secured.POST("/timetables", internalmiddleware.RequireRoles(models.RoleScheduler), timetableHandler.Generate)
	secured.POST("/timetables/:id/exports", internalmiddleware.RequireRoles(models.RoleScheduler), timetableHandler.RequestExport)
	secured.GET("/timetables/:id", internalmiddleware.RequireRoles(models.RoleScheduler, models.RoleViewer), timetableHandler.Get)
	secured.GET("/exports/:id", internalmiddleware.RequireRoles(models.RoleScheduler, models.RoleViewer), timetableHandler.ExportStatus)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

// newTimetableService passes nil interfaces when the database is off so persistence is skipped.
func newTimetableService(repo *repository.TimetableRepository, db *sqlx.DB, cacheSvc *service.CacheService, metrics *service.MetricsService, validate *validator.Validate, logr *zap.Logger, cfg *config.Config) (*service.TimetableService, error) {
	svcCfg := service.TimetableServiceConfig{Scheduler: cfg.Scheduler, CacheTTL: cfg.Redis.CacheTTL}
	if repo == nil || db == nil {
		return service.NewTimetableService(nil, nil, cacheSvc, metrics, validate, logr, svcCfg)
	}
	return service.NewTimetableService(repo, db, cacheSvc, metrics, validate, logr, svcCfg)
}

func exportJobs(repo *repository.ExportRepository) service.ExportJobStore {
	if repo == nil {
		return nil
	}
	return repo
}

func sweep(ctx context.Context, logr *zap.Logger, every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	logr.Debug("sweeper started", zap.Duration("interval", every))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
