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

	"github.com/unifiedbase/unifiedbase/internal/app"
	"github.com/unifiedbase/unifiedbase/internal/authn"
	"github.com/unifiedbase/unifiedbase/internal/files"
	"github.com/unifiedbase/unifiedbase/internal/identity"
	"github.com/unifiedbase/unifiedbase/internal/observability"
	"github.com/unifiedbase/unifiedbase/internal/platform/cache"
	"github.com/unifiedbase/unifiedbase/internal/platform/db"
	"github.com/unifiedbase/unifiedbase/internal/rbac"
	"github.com/unifiedbase/unifiedbase/internal/records"
	"github.com/unifiedbase/unifiedbase/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	catalog := rbac.NewPGCatalog(pool)
	permCache := rbac.NewCache(redisClient, cfg.PermCacheTTL)
	resolver := rbac.NewResolver(catalog, permCache, logger, metrics)
	gate := rbac.NewGate(resolver, metrics)
	rbacMiddleware := rbac.Middleware{Gate: gate, Logger: logger}

	groupSyncer := rbac.NewGroupSyncer(catalog, resolver, logger)

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo, groupSyncer, logger)

	rbacService := rbac.NewService(catalog, resolver, identityService, logger)
	rbacHandler := rbac.NewHandler(logger, rbacService, resolver, rbacMiddleware)

	identityHandler := identity.NewHandler(logger, identityService, rbacMiddleware)

	recordsRepo := records.NewRepository(pool)
	recordsHandler := records.NewHandler(logger, recordsRepo, rbacMiddleware)

	var filesHandler *files.Handler
	objectStore, err := files.NewObjectStore(ctx, files.ObjectStoreConfig{
		Bucket:         cfg.S3Bucket,
		Region:         cfg.S3Region,
		AccessKeyID:    cfg.S3AccessKeyID,
		SecretKey:      cfg.S3SecretKey,
		Endpoint:       cfg.S3Endpoint,
		ForcePathStyle: cfg.S3ForcePathStyle,
	})
	if err != nil {
		logger.Warn("object store disabled", slog.Any("error", err))
	} else {
		filesRepo := files.NewRepository(pool)
		filesService := files.NewService(filesRepo, objectStore, logger)
		filesHandler = files.NewHandler(logger, filesService, rbacMiddleware)
	}

	verifier := authn.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	authnMiddleware := authn.Middleware{Verifier: verifier, Identity: identityService, Logger: logger}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Authn:           authnMiddleware,
		RBACHandler:     rbacHandler,
		IdentityHandler: identityHandler,
		RecordsHandler:  recordsHandler,
		FilesHandler:    filesHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
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
