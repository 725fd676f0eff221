package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/unifiedbase/unifiedbase/internal/app"
	"github.com/unifiedbase/unifiedbase/internal/observability"
	"github.com/unifiedbase/unifiedbase/internal/platform/cache"
	"github.com/unifiedbase/unifiedbase/internal/platform/db"
	"github.com/unifiedbase/unifiedbase/internal/rbac"
	"github.com/unifiedbase/unifiedbase/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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

	sweeper := jobs.NewSweeper(catalog, resolver, logger)
	warmer := jobs.NewWarmer(resolver, logger)

	var cron []jobs.CronRegistration
	if cfg.SweepCron != "" {
		sweepTask, err := jobs.NewSweepExpiredTask(time.Now().UTC())
		if err != nil {
			logger.Error("build sweep task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.SweepCron,
			Task:    sweepTask,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Metrics:   metrics,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSweepExpired, Handler: sweeper.HandleSweepExpired},
			{Type: jobs.TaskWarmCache, Handler: warmer.HandleWarmCache},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
