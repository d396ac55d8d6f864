package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutorclass-api/api/swagger"
	"github.com/noah-isme/tutorclass-api/internal/dto"
	"github.com/noah-isme/tutorclass-api/internal/handler"
	"github.com/noah-isme/tutorclass-api/internal/middleware"
	"github.com/noah-isme/tutorclass-api/internal/repository"
	"github.com/noah-isme/tutorclass-api/internal/service"
	"github.com/noah-isme/tutorclass-api/pkg/cache"
	"github.com/noah-isme/tutorclass-api/pkg/config"
	"github.com/noah-isme/tutorclass-api/pkg/database"
	"github.com/noah-isme/tutorclass-api/pkg/jobs"
	"github.com/noah-isme/tutorclass-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutorclass-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutorclass-api/pkg/middleware/requestid"
)

// @title Tutor Class Scheduling API
// @version 1.0.0
// @description Class scheduling with slot conflict checks and purchased-class balances.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.Events.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, running without cache and event publishing", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	validate := dto.NewValidator()

	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Cache.UsedCountTTL, logr, cfg.Cache.Enabled && redisClient != nil)
	if err := cacheSvc.Purge(ctx); err != nil {
		logr.Warn("cache purge at startup failed", zap.Error(err))
	}

	registry := service.NewSlotRegistry(classRepo, logr)
	ledger := service.NewQuotaLedger(classRepo, logr)
	resolver := service.NewConflictResolver(classRepo, studentRepo, registry, ledger, metrics, logr, service.ConflictResolverConfig{
		EnforceGroupQuota: cfg.Scheduling.EnforceGroupQuota,
	})
	teacherSvc := service.NewTeacherService(teacherRepo, logr)
	studentSvc := service.NewStudentService(studentRepo, ledger, classRepo, cacheSvc, metrics, logr, service.StudentServiceConfig{
		UsedCountTTL: cfg.Cache.UsedCountTTL,
		BalanceTTL:   cfg.Cache.StudentStatsTTL,
	})

	statsQueue := jobs.NewQueue("student-stats", studentSvc.HandleStatsJob, jobs.QueueConfig{
		Workers:    cfg.Stats.WorkerConcurrency,
		MaxRetries: cfg.Stats.WorkerRetries,
		RetryDelay: cfg.Stats.RetryDelay,
		Logger:     logr,
	})
	statsQueue.Start(ctx)
	defer statsQueue.Stop()

	bus := service.NewClassEventBus(logr)
	if cfg.Events.Enabled && redisClient != nil {
		bus.Subscribe("redis-publish", service.ForwardClassEvents(repository.NewClassEventPublisher(redisClient, cfg.Events.Channel)))
	}
	bus.Subscribe("cache-invalidation", service.InvalidateStudentCaches(cacheSvc))
	bus.Subscribe("stats-recalculation", service.ScheduleStatsRecalculation(statsQueue))

	classSvc := service.NewClassService(classRepo, resolver, registry, teacherSvc, bus, validate, logr)
	exportSvc := service.NewExportService(classRepo, teacherRepo, service.ExportConfig{}, logr)
	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterRoutes(r, cfg.APIPrefix, tokenSvc, handler.Handlers{
		Classes:  handler.NewClassHandler(classSvc, exportSvc),
		Students: handler.NewStudentHandler(studentSvc),
		Teachers: handler.NewTeacherHandler(teacherSvc),
		Metrics:  handler.NewMetricsHandler(metrics, checks),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

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
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
