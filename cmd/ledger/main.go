package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/produce-ledger/internal/app"
	"github.com/odyssey-erp/produce-ledger/internal/integrity"
	jobmetrics "github.com/odyssey-erp/produce-ledger/internal/jobs"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/ledger/memory"
	"github.com/odyssey-erp/produce-ledger/internal/observability"
	"github.com/odyssey-erp/produce-ledger/internal/platform/cache"
	"github.com/odyssey-erp/produce-ledger/internal/platform/db"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
	"github.com/odyssey-erp/produce-ledger/jobs"
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
	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	var (
		repo  ledger.RepositoryPort
		audit ledger.AuditPort
		ready app.Pinger
	)
	switch cfg.StoreDriver {
	case app.StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		repo = memory.New()
	default:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		repo = ledger.NewRepository(pool)
		audit = shared.NewAuditLogger(pool)
		ready = pool
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, integrity scans stay in process", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	ledgerService := ledger.NewService(repo, ledger.ServiceConfig{
		Location: cfg.Location(),
		Logger:   logger,
		Audit:    audit,
		Observer: metrics,
	})

	integrityCfg := integrity.ServiceConfig{
		LockTTL:  cfg.IntegrityLockTTL,
		Recorder: jobMetrics,
		Logger:   logger,
	}
	var (
		jobHandler  *jobs.Handler
		idempotency *shared.IdempotencyStore
	)
	if redisClient != nil {
		idempotency = shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
		integrityCfg.Cache = integrity.NewReportCache(redisClient, cfg.IntegrityReportTTL)
		integrityCfg.Locker = redislock.New(redisClient)

		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient := jobs.NewClient(redisOpts)
		defer func() { _ = jobClient.Close() }()
		inspector := asynq.NewInspector(redisOpts)
		defer func() { _ = inspector.Close() }()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	}
	auditor := integrity.NewAuditor(repo, integrity.AuditorConfig{Logger: logger, Location: cfg.Location()})
	integrityService := integrity.NewService(auditor, integrityCfg)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledger.NewHandler(logger, ledgerService),
		IntegrityHandler: integrity.NewHandler(integrityService),
		JobHandler:       jobHandler,
		Metrics:          metrics,
		Idempotency:      idempotency,
		Ready:            ready,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", cfg.StoreDriver),
			slog.String("timezone", cfg.Location().String()),
		)
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
