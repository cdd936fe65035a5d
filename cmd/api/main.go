package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edukit-vn/tcm-api/api/swagger"
	"github.com/edukit-vn/tcm-api/internal/handler"
	"github.com/edukit-vn/tcm-api/internal/middleware"
	"github.com/edukit-vn/tcm-api/internal/repository"
	"github.com/edukit-vn/tcm-api/internal/service"
	"github.com/edukit-vn/tcm-api/pkg/cache"
	"github.com/edukit-vn/tcm-api/pkg/config"
	"github.com/edukit-vn/tcm-api/pkg/database"
	"github.com/edukit-vn/tcm-api/pkg/jobs"
	"github.com/edukit-vn/tcm-api/pkg/logger"
	corsmiddleware "github.com/edukit-vn/tcm-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edukit-vn/tcm-api/pkg/middleware/requestid"
)

// @title Tuition Center Enrollment API
// @version 1.0.0
// @description Enrollment workflow: capacity gating, schedule conflict checking and class transfers
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, capacity cache disabled", "error", err)
		} else {
			defer redisClient.Close()
		}
	}

	notifyQueue := jobs.NewQueue("notifications", service.NewNotificationHandler(logr), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notifyQueue.Start(context.Background())
	defer notifyQueue.Stop()

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)

	var capacityCache *repository.CacheRepository
	if redisClient != nil {
		capacityCache = repository.NewCacheRepository(redisClient, logr)
	}

	metricsSvc := service.NewMetricsService()
	notifier := service.NewNotificationService(notifyQueue, logr)
	conflicts := service.NewConflictChecker(enrollmentRepo, logr)

	validate := validator.New()
	svcCfg := service.EnrollmentServiceConfig{
		Notifier:    notifier,
		CapacityTTL: cfg.Cache.CapacityTTL,
		Metrics:     metricsSvc,
	}
	if capacityCache != nil {
		svcCfg.Cache = capacityCache
	}
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, classRepo, conflicts, svcCfg, validate, logr)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	classHandler := handler.NewClassEnrollmentHandler(enrollmentSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.HTTPHandler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if cfg.JWT.Secret != "" {
		api.Use(middleware.JWT(cfg.JWT.Secret))
	} else {
		logr.Warn("JWT_SECRET not set, admin endpoints are unauthenticated")
	}

	enrollments := api.Group("/enrollments")
	{
		enrollments.GET("", enrollmentHandler.List)
		enrollments.POST("", enrollmentHandler.Create)
		enrollments.POST("/bulk", enrollmentHandler.BulkEnroll)
		enrollments.DELETE("/:id", enrollmentHandler.Delete)
		enrollments.PUT("/:id/status", enrollmentHandler.UpdateStatus)
		enrollments.POST("/:id/transfer", enrollmentHandler.Transfer)
		enrollments.GET("/student/:studentId", enrollmentHandler.ByStudent)
		enrollments.GET("/class/:classId", classHandler.Roster)
		enrollments.GET("/class/:classId/capacity", classHandler.Capacity)
		enrollments.GET("/class/:classId/available-students", classHandler.AvailableStudents)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
