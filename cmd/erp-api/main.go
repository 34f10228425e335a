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
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-erp-api/api/swagger"
	"github.com/noah-isme/campus-erp-api/internal/handler"
	"github.com/noah-isme/campus-erp-api/internal/middleware"
	"github.com/noah-isme/campus-erp-api/internal/repository"
	"github.com/noah-isme/campus-erp-api/internal/service"
	"github.com/noah-isme/campus-erp-api/pkg/cache"
	"github.com/noah-isme/campus-erp-api/pkg/config"
	"github.com/noah-isme/campus-erp-api/pkg/database"
	"github.com/noah-isme/campus-erp-api/pkg/jobs"
	"github.com/noah-isme/campus-erp-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-erp-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-erp-api/pkg/middleware/requestid"
)

// @title Campus ERP API
// @version 1.0.0
// @description Role-based request routing for college staff workflows
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Requests.StatsCacheTTL, logr, true)
	}

	authSvc := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})

	requestSvc := service.NewRequestService(service.RequestServiceParams{
		Repo:    requestRepo,
		Users:   userRepo,
		Audit:   userRepo,
		Cache:   cacheSvc,
		Metrics: metricsSvc,
		Logger:  logr,
		Config: service.RequestServiceConfig{
			StatsCacheTTL:       cfg.Requests.StatsCacheTTL,
			RecipientsCacheTTL:  cfg.Requests.RecipientsCacheTTL,
			DefaultResponseTime: cfg.Requests.DefaultResponseTime,
		},
	})

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportSvc = service.NewExportService(requestRepo, userRepo, service.ExportConfig{Title: cfg.Exports.Title}, logr, nil, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Escalation.Enabled {
		queue := jobs.NewQueue("escalation", func(ctx context.Context, job jobs.Job) error {
			escalated, err := requestSvc.EscalateOverdue(ctx)
			if err != nil {
				return err
			}
			if escalated > 0 {
				logr.Sugar().Infow("escalation sweep complete", "escalated", escalated)
			}
			return nil
		}, jobs.QueueConfig{
			Workers:    1,
			MaxRetries: cfg.Escalation.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		go func() {
			ticker := time.NewTicker(cfg.Escalation.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: "escalation_sweep"}); err != nil {
						logr.Sugar().Warnw("failed to enqueue escalation sweep", "error", err)
					}
				}
			}
		}()
	}

	router := buildRouter(cfg, logr, authSvc, requestSvc, exportSvc, metricsSvc, userRepo)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func buildRouter(
	cfg *config.Config,
	logr *zap.Logger,
	authSvc *service.AuthService,
	requestSvc *service.RequestService,
	exportSvc *service.ExportService,
	metricsSvc *service.MetricsService,
	userRepo *repository.UserRepository,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)

	requestHandler := handler.NewRequestHandler(requestSvc, nil)
	if exportSvc != nil {
		requestHandler = handler.NewRequestHandler(requestSvc, exportSvc)
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	requests := api.Group("/requests", middleware.JWT(authSvc))
	{
		requests.POST("", requestHandler.Create)
		requests.GET("", middleware.RequireAuditVisibility(), middleware.Audit(userRepo, "REQUEST_LOG_VIEW", "request"), requestHandler.All)
		requests.GET("/incoming", requestHandler.Incoming)
		requests.GET("/outgoing", requestHandler.Outgoing)
		requests.GET("/stats", requestHandler.Stats)
		requests.GET("/recipients", requestHandler.Recipients)
		requests.GET("/types", requestHandler.Types)
		requests.GET("/profile", requestHandler.Profile)
		requests.GET("/export", middleware.RequireAuditVisibility(), requestHandler.Export)
		requests.GET("/:id", requestHandler.Get)
		requests.POST("/:id/decision", requestHandler.Decide)
		requests.POST("/:id/comments", requestHandler.AddComment)
	}

	api.GET("/metrics/snapshot", middleware.JWT(authSvc), middleware.RequireAuditVisibility(), metricsHandler.Snapshot)

	return r
}
