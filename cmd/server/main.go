package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ams/backend/internal/bootstrap"
	"github.com/ams/backend/internal/infrastructure/auth"
	"github.com/ams/backend/internal/infrastructure/config"
	"github.com/ams/backend/internal/infrastructure/logger"
	"github.com/ams/backend/internal/interfaces/http/handler"
	"github.com/ams/backend/internal/interfaces/http/middleware"
	"github.com/ams/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/ams/backend/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//	@title			Subscription Lifecycle & Revenue API
//	@version		1.0
//	@description	Subscription lifecycle, renewal and revenue recognition engine

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()
	container, err := bootstrap.New(ctx, cfg, bootstrap.Options{Scheduler: true})
	if err != nil {
		panic("Failed to initialize: " + err.Error())
	}
	log := container.Logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Close(shutdownCtx); err != nil {
			log.Error("Error releasing resources", zap.Error(err))
		}
	}()

	log.Info("Starting subscription engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", bootstrap.Version),
	)

	if err := container.StartScheduler(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Keep the handler's scheduler nil when cron is off, not a typed nil
	var schedule handler.SchedulerStatus
	if container.CronTrigger != nil {
		schedule = container.CronTrigger
	}

	handlers := router.Handlers{
		Subscriptions: handler.NewSubscriptionHandler(container.Subscriptions, container.Recognition, container.Renewals),
		Catalog:       handler.NewCatalogHandler(container.CatalogAdmin),
		Failures:      handler.NewFailureHandler(container.Failures),
		Jobs:          handler.NewJobHandler(container.Jobs, schedule, container.Clock),
		System: handler.NewSystemHandler(cfg.App.Name, bootstrap.Version,
			healthChecks(container)...),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order:
	// 1. Recovery - catch panics
	// 2. RequestID - generate/propagate request ID
	// 3. Logger - request-scoped logger and access log
	// 4. Tracing - server span, then request attributes on it
	// 5. Metrics - HTTP instruments
	// 6. CORS, security headers, body limit
	// 7. BearerAuth - when JWT is enabled
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     container.Telemetry.TracingEnabled(),
	}))
	engine.Use(middleware.SpanEnricher())
	if cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled {
		engine.Use(middleware.HTTPMetricsWithMeter(container.Telemetry.Meter("ams-http"), log))
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsCfg))

	secCfg := middleware.DefaultSecurityConfig()
	secCfg.HSTSEnabled = cfg.IsProduction()
	engine.Use(middleware.SecureWithConfig(secCfg))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var access router.Access
	var swaggerAuth gin.HandlerFunc
	if cfg.JWT.Enabled {
		validator := auth.NewTokenValidator(cfg.JWT)
		authCfg := middleware.DefaultBearerAuthConfig(validator)
		authCfg.Logger = log
		engine.Use(middleware.BearerAuth(authCfg))
		// The global guard skips /swagger; this one does not
		swaggerAuth = middleware.BearerAuth(middleware.BearerAuthConfig{Validator: validator, Logger: log})
		access = router.Access{
			Reader:   middleware.RequireRole(auth.RoleReader),
			Operator: middleware.RequireRole(auth.RoleOperator),
		}
	} else {
		log.Warn("JWT authentication disabled, the API is open")
	}

	engine.GET("/health", handlers.System.Health)
	engine.GET("/api/v1/health", handlers.System.Health)

	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:     cfg.Swagger.Enabled,
			RequireAuth: cfg.Swagger.RequireAuth,
			AllowedIPs:  cfg.Swagger.AllowedIPs,
		}, swaggerAuth),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	router.RegisterAPI(r, handlers, access).Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func healthChecks(c *bootstrap.Container) []handler.HealthCheck {
	checks := []handler.HealthCheck{
		{Name: "database", Check: c.Database.Ping},
	}
	if c.Redis != nil {
		checks = append(checks, handler.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return c.Redis.Ping(ctx).Err()
			},
		})
	}
	return checks
}
