package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/produce-ledger/internal/app"
	"github.com/odyssey-erp/produce-ledger/internal/integrity"
	jobmetrics "github.com/odyssey-erp/produce-ledger/internal/jobs"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/platform/cache"
	"github.com/odyssey-erp/produce-ledger/internal/platform/db"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
	"github.com/odyssey-erp/produce-ledger/jobs"
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

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))
	if cfg.StoreDriver != app.StorePostgres {
		logger.Error("worker requires the postgres store", slog.String("store", cfg.StoreDriver))
		os.Exit(1)
	}
	if cfg.RedisAddr == "" {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	repo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(repo, ledger.ServiceConfig{
		Location: cfg.Location(),
		Logger:   logger,
		Audit:    shared.NewAuditLogger(pool),
	})
	integrityService := integrity.NewService(
		integrity.NewAuditor(repo, integrity.AuditorConfig{Logger: logger, Location: cfg.Location()}),
		integrity.ServiceConfig{
			Cache:    integrity.NewReportCache(redisClient, cfg.IntegrityReportTTL),
			Locker:   redislock.New(redisClient),
			LockTTL:  cfg.IntegrityLockTTL,
			Recorder: metrics,
			Logger:   logger,
		},
	)

	integrityJob := jobs.NewIntegrityCheckJob(integrityService, logger, metrics)
	integrityJob.Repair = cfg.IntegrityRepair
	rolloverJob := jobs.NewInventoryRolloverJob(ledgerService, logger, metrics)

	integrityTask, err := jobs.NewIntegrityCheckTask(jobs.IntegrityCheckPayload{Repair: cfg.IntegrityRepair})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	rolloverTask, err := jobs.NewInventoryRolloverTask(time.Time{})
	if err != nil {
		logger.Error("build rollover task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskIntegrityCheck, Handler: integrityJob.Handle},
			{Type: jobs.TaskInventoryRollover, Handler: rolloverJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RolloverCron, Task: rolloverTask, Options: []asynq.Option{asynq.MaxRetry(5)}},
			{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
