package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/valuetrack/valuetrack/internal/app"
	"github.com/valuetrack/valuetrack/internal/audit"
	"github.com/valuetrack/valuetrack/internal/observability"
	"github.com/valuetrack/valuetrack/internal/permissions"
	"github.com/valuetrack/valuetrack/internal/platform/cache"
	"github.com/valuetrack/valuetrack/internal/platform/db"
	"github.com/valuetrack/valuetrack/internal/rbac"
	"github.com/valuetrack/valuetrack/internal/roles"
	"github.com/valuetrack/valuetrack/internal/shared"
	"github.com/valuetrack/valuetrack/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Resolution falls back to the store when the cache is down.
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	permissionRepo := permissions.NewRepository(dbpool)
	permissionService := permissions.NewService(permissionRepo)
	if err := permissionService.Seed(ctx); err != nil {
		logger.Error("seed permission registry", slog.Any("error", err))
		os.Exit(1)
	}

	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	denialRecorder := audit.NewRecorder(dbpool)

	rolesRepo := roles.NewRepository(dbpool)
	permissionCache := rbac.NewCache(redisClient, cfg.PermissionCacheTTL, logger)
	resolver := rbac.NewResolver(rolesRepo, permissionCache, logger)
	guard := rbac.NewGuard(resolver)
	authorizer := rbac.NewAuthorizer(resolver, logger)

	rolesService := roles.NewService(rolesRepo, permissionService, guard, permissionCache, idempotencyStore, denialRecorder, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, resolver, authorizer)
	permissionsHandler := permissions.NewHandler(logger, permissionService, authorizer)

	auditRepo := audit.NewPGRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService, authorizer)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("build job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		AuditHandler:       auditHandler,
		JobsHandler:        jobHandler,
		Metrics:            metrics,
		Pool:               dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
