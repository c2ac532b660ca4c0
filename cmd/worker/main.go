package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-finance/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-finance/internal/jobs"
	"github.com/odyssey-erp/odyssey-finance/internal/observability"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
	"github.com/odyssey-erp/odyssey-finance/internal/transactions"
	"github.com/odyssey-erp/odyssey-finance/jobs"
)

const metricsAddr = ":9091"

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

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	transactionService := transactions.NewService(transactions.NewRepository(pool), transactions.ServiceConfig{
		Logger:   logger,
		Location: cfg.Location(),
		Audit:    shared.NewAuditLogger(pool),
	})

	recurrenceJob := jobs.NewRecurrenceJob(transactionService, cfg.RecurrenceBatch, logger, jobMetrics)
	overdueJob := jobs.NewOverdueSweepJob(transactionService, metrics, logger, jobMetrics)
	purgeJob := jobs.NewIdempotencyPurgeJob(shared.NewIdempotencyStore(pool), logger, jobMetrics)

	recurrenceTask, err := jobs.NewRecurrenceGenerateTask(time.Time{})
	if err != nil {
		logger.Error("build recurrence task", slog.Any("error", err))
		os.Exit(1)
	}
	purgeTask, err := jobs.NewIdempotencyPurgeTask(cfg.IdempotencyRetain)
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurrenceGenerate, Handler: recurrenceJob.Handle},
			{Type: jobs.TaskOverdueSweep, Handler: overdueJob.Handle},
			{Type: jobs.TaskIdempotencyPurge, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecurrenceCron, Task: recurrenceTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.OverdueSweepCron, Task: jobs.NewOverdueSweepTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "30 4 * * *", Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() { _ = metricsServer.Close() }()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
