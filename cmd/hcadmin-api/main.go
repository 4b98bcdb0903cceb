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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/careops/hcadmin-api/api/swagger"
	"github.com/careops/hcadmin-api/internal/handler"
	"github.com/careops/hcadmin-api/internal/middleware"
	"github.com/careops/hcadmin-api/internal/models"
	"github.com/careops/hcadmin-api/internal/repository"
	"github.com/careops/hcadmin-api/internal/service"
	"github.com/careops/hcadmin-api/pkg/cache"
	"github.com/careops/hcadmin-api/pkg/config"
	"github.com/careops/hcadmin-api/pkg/database"
	"github.com/careops/hcadmin-api/pkg/jobs"
	"github.com/careops/hcadmin-api/pkg/logger"
	corsmiddleware "github.com/careops/hcadmin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/careops/hcadmin-api/pkg/middleware/requestid"
	"github.com/careops/hcadmin-api/pkg/storage"
)

// @title HC Admin API
// @version 1.0.0
// @description Healthcare administration API with audit log querying
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	facilityRepo := repository.NewFacilityRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)

	cacheEnabled := false
	var cacheRepo *repository.CacheRepository
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	} else {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		cacheEnabled = true
		defer cacheRepo.Close()
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Facilities.CacheTTL, logr, cacheEnabled)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "hcadmin-api",
	})
	auditSvc := service.NewAuditService(auditRepo, userRepo, cacheSvc, metrics, logr, service.AuditServiceConfig{
		ActiveUserWindow:  cfg.Audit.ActiveUserWindow,
		StatsCacheEnabled: cfg.Audit.StatsCacheEnabled,
		StatsCacheTTL:     cfg.Audit.StatsCacheTTL,
	})
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	facilitySvc := service.NewFacilityService(facilityRepo, auditRepo, cacheSvc, validate, logr)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare export storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(auditRepo, exportJobRepo, store, signer, service.ExportServiceConfig{
			APIPrefix: cfg.APIPrefix,
			MaxRows:   cfg.Exports.MaxRows,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr)
		exportSvc.StartQueue(ctx, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		defer exportSvc.StopQueue()

		go func() {
			ticker := time.NewTicker(cfg.Exports.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					exportSvc.Cleanup()
				}
			}
		}()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	userHandler := handler.NewUserHandler(userSvc)
	facilityHandler := handler.NewFacilityHandler(facilitySvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	authProtected := auth.Group("", middleware.JWT(authSvc))
	authProtected.POST("/logout", authHandler.Logout)
	authProtected.POST("/change-password", authHandler.ChangePassword)
	authProtected.GET("/me", authHandler.Me)

	audit := api.Group("/audit", middleware.JWT(authSvc))
	audit.POST("", auditHandler.Query)

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		exports := audit.Group("/exports", middleware.RequireRoles(userRepo, models.RoleSuperAdmin))
		exports.POST("", middleware.Audit(auditRepo, models.AuditActionCreate, "export_jobs"), exportHandler.Create)
		exports.GET("/:id", exportHandler.Status)
		// Download is authenticated by the signed token itself.
		api.GET("/audit/exports/:id/download", exportHandler.Download)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	users.GET("", middleware.RequireRoles(userRepo, models.RoleSuperAdmin, models.RoleAdmin), userHandler.List)
	users.GET("/:id", middleware.RequireRolesOrSelf(userRepo, models.RoleSuperAdmin, models.RoleAdmin), userHandler.Get)
	users.POST("", middleware.RequireRoles(userRepo, models.RoleSuperAdmin), userHandler.Create)
	users.PUT("/:id", middleware.RequireRoles(userRepo, models.RoleSuperAdmin), userHandler.Update)
	users.DELETE("/:id", middleware.RequireRoles(userRepo, models.RoleSuperAdmin), userHandler.Delete)

	facilities := api.Group("/facilities", middleware.JWT(authSvc))
	facilities.GET("", facilityHandler.List)
	facilities.GET("/:id", facilityHandler.Get)
	facilities.POST("", middleware.RequireRoles(userRepo, models.RoleSuperAdmin, models.RoleAdmin), facilityHandler.Create)
	facilities.PUT("/:id", middleware.RequireRoles(userRepo, models.RoleSuperAdmin, models.RoleAdmin), facilityHandler.Update)
	facilities.DELETE("/:id", middleware.RequireRoles(userRepo, models.RoleSuperAdmin), facilityHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
