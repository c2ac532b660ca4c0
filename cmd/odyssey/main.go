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

	"github.com/odyssey-erp/odyssey-finance/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-finance/internal/app"
	"github.com/odyssey-erp/odyssey-finance/internal/observability"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
	"github.com/odyssey-erp/odyssey-finance/internal/reports"
	"github.com/odyssey-erp/odyssey-finance/internal/settlement"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
	"github.com/odyssey-erp/odyssey-finance/internal/transactions"
	"github.com/odyssey-erp/odyssey-finance/jobs"
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
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(redisOpts)
		defer func() { _ = jobsCLI.Close() }()
		if err := jobsCLI.Run(ctx, os.Stdout, os.Args[2:], cfg.IdempotencyRetain); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	location := cfg.Location()

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	if err := reportCache.ListenForInvalidation(ctx, metrics.SetCacheVersion); err != nil {
		logger.Warn("subscribe report invalidation", slog.Any("error", err))
	}
	exporter := reports.NewExporter(cfg.Language())
	reportService := reports.NewService(reports.NewRepository(dbpool), reportCache, metrics, logger)
	reportHandler := reports.NewHandler(logger, reportService, exporter)

	transactionService := transactions.NewService(transactions.NewRepository(dbpool), transactions.ServiceConfig{
		Logger:   logger,
		Location: location,
		Audit:    auditLogger,
	})
	transactionHandler := transactions.NewHandler(logger, transactionService, exporter)

	settlementService := settlement.NewService(settlement.NewRepository(dbpool), settlement.ServiceConfig{
		Policy:      cfg.Policy(),
		Idempotency: idempotencyStore,
		Cache:       reportCache,
		Audit:       auditLogger,
		Metrics:     metrics,
		Logger:      logger,
		Location:    location,
	})
	settlementHandler := settlement.NewHandler(logger, settlementService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient := jobs.NewClient(redisOpts)
	defer func() { _ = jobsClient.Close() }()
	jobHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		TransactionsHandler: transactionHandler,
		SettlementHandler:   settlementHandler,
		ReportsHandler:      reportHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
		Checks: map[string]app.Pinger{
			"postgres": dbpool,
			"redis": app.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
