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

	"github.com/odyssey-erp/payalloc/internal/app"
	"github.com/odyssey-erp/payalloc/internal/invoicing"
	invoicinghttp "github.com/odyssey-erp/payalloc/internal/invoicing/http"
	jobmetrics "github.com/odyssey-erp/payalloc/internal/jobs"
	"github.com/odyssey-erp/payalloc/internal/observability"
	"github.com/odyssey-erp/payalloc/internal/platform/cache"
	"github.com/odyssey-erp/payalloc/internal/platform/db"
	"github.com/odyssey-erp/payalloc/internal/platform/events"
	"github.com/odyssey-erp/payalloc/internal/shared"
	"github.com/odyssey-erp/payalloc/jobs"
)

func main() {
	if app.SkipStartup("worker") {
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
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	repo := invoicing.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	service := invoicing.NewService(invoicing.ServiceConfig{
		Repo:    repo,
		Cache:   invoicing.NewCache(redisClient, cfg.CacheTTL),
		Audit:   shared.NewAuditLogger(pool),
		Events:  publisher,
		Metrics: invoicing.NewMetrics(metrics.Registerer()),
		Logger:  logger,
	})

	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	runJob := jobs.NewInvoiceRunJob(service, logger, jobMetrics)
	flushJob := jobs.NewCacheFlushJob(service, logger, jobMetrics)

	var cron []jobs.CronRegistration
	if cfg.CacheFlushCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.CacheFlushCron, Task: jobs.NewCacheFlushTask(), Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts.AsynqOpt(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInvoiceRun, Handler: runJob.Handle},
			{Type: jobs.TaskCacheFlush, Handler: flushJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts.AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	server := &http.Server{
		Addr: cfg.AppAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:     logger,
			Config:     cfg,
			Metrics:    metrics,
			JobHandler: jobs.NewHandler(inspector, logger),
			RunHandler: invoicinghttp.NewHandler(logger, service),
		}),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			stop()
		}
		close(serverErr)
	}()

	workerErr := worker.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown", slog.Any("error", err))
	}
	if err := <-serverErr; err != nil {
		logger.Error("ops server", slog.Any("error", err))
	}

	if workerErr != nil && !errors.Is(workerErr, context.Canceled) {
		logger.Error("worker run", slog.Any("error", workerErr))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
