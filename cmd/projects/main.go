package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/perimetra/projects-service/internal/client"
	"github.com/perimetra/projects-service/internal/config"
	"github.com/perimetra/projects-service/internal/handler"
	"github.com/perimetra/projects-service/internal/health"
	"github.com/perimetra/projects-service/internal/metrics"
	"github.com/perimetra/projects-service/internal/middleware"
	"github.com/perimetra/projects-service/internal/service"
	"github.com/perimetra/projects-service/internal/storage"
	"github.com/perimetra/projects-service/internal/tenant"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting projects service",
		zap.Int("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.Int("database_port", cfg.Database.Port),
		zap.String("database_name", cfg.Database.Database),
		zap.String("database_user", cfg.Database.User))

	// Initialize metrics
	m := metrics.NewMetrics()
	logger.Info("Metrics initialized")

	// Initialize cache (Redis, or in-memory when no endpoint is configured)
	var cache storage.Cache
	var cachePinger health.Pinger
	if cfg.Redis.Host != "" {
		redisCache, err := storage.NewRedisCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis cache", zap.Error(err))
		}
		defer redisCache.Close()
		cache = redisCache
		cachePinger = redisCache
		logger.Info("Redis cache initialized")
	} else {
		cache = storage.NewInMemoryCache(cfg.Cache.MaxSize)
		logger.Info("In-memory cache initialized")
	}

	// Service-level connection pool, used for cross-tenant projection reads
	// and health checks
	ctx := context.Background()
	systemPool, err := pgxpool.New(ctx, cfg.Database.ConnString())
	if err != nil {
		logger.Fatal("Failed to create database connection pool", zap.Error(err))
	}
	defer systemPool.Close()
	if err := systemPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Database connection pool initialized")

	// Initialize external service clients
	tenantsClient := client.NewTenantsClient(cfg.Services.TenantsURL, cfg.Services.Timeout, logger)
	identityClient := client.NewIdentityClient(cfg.Services.IdentityURL, cfg.Services.Timeout, logger)
	subscriptionsClient := client.NewSubscriptionsClient(cfg.Services.SubscriptionsURL, cfg.Services.Timeout, logger)
	logger.Info("Service clients initialized")

	// Tenant routing: resolver plus per-tenant pool arena
	resolver := tenant.NewResolver(tenantsClient, cache, cfg.Cache.TenantCredentialsTTL, logger)
	arena := tenant.NewPoolArena(resolver, cfg.Database.ConnTemplate(), cfg.Cache.TenantPoolTTL, m.TenantPoolsActive, logger)
	defer arena.Close()
	logger.Info("Tenant pool arena initialized")

	storeFactory := func(ctx context.Context, tenantID string) (storage.ProjectStore, error) {
		pool, err := arena.Pool(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		return storage.NewProjectStore(pool, logger), nil
	}
	userStoreFactory := func(ctx context.Context, tenantID string) (storage.ProjectUserStore, error) {
		pool, err := arena.Pool(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		return storage.NewProjectUserStore(pool, logger), nil
	}

	constraintStore := storage.NewConstraintStore(systemPool, logger)

	projectsService := service.NewProjectsService(
		storeFactory,
		userStoreFactory,
		constraintStore,
		cache,
		identityClient,
		subscriptionsClient,
		cfg.Cache.TenantIDTTL,
		m,
		logger,
	)
	logger.Info("Services initialized")

	// Initialize handlers and router
	errorWriter := handler.NewErrorWriter(logger)
	handlers := handler.NewHandlers(projectsService, errorWriter, logger)

	router := mux.NewRouter()
	handlers.Register(router)

	healthChecker := health.NewHealthChecker(systemPool, cachePinger, logger)
	router.HandleFunc("/health/live", healthChecker.LivenessHandler).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", healthChecker.ReadinessHandler).Methods(http.MethodGet)

	// Registered on the router so the middleware sees the matched route
	// template; logs and metric labels carry the template, never the raw
	// path.
	rateLimiter := middleware.NewRateLimiter(cfg.Server.RequestsPerSecond, cfg.Server.Burst, logger)
	router.Use(
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Logging(logger, m),
		rateLimiter.Limit,
		middleware.Timeout(cfg.Server.RequestTimeout),
	)

	// Start metrics server
	if cfg.Metrics.Enabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, metricsMux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	logger.Info("Starting HTTP server", zap.String("address", addr))

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown timed out, forcing close", zap.Error(err))
		server.Close()
	}

	logger.Info("Projects service stopped")
}

// newLogger builds a zap logger from the logging configuration.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
