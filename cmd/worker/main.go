package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wariline/wariline/internal/accounts"
	"github.com/wariline/wariline/internal/app"
	"github.com/wariline/wariline/internal/archive"
	jobmetrics "github.com/wariline/wariline/internal/jobs"
	"github.com/wariline/wariline/internal/notify"
	"github.com/wariline/wariline/internal/platform/cache"
	"github.com/wariline/wariline/internal/platform/db"
	"github.com/wariline/wariline/internal/reconcile"
	"github.com/wariline/wariline/internal/shared"
	"github.com/wariline/wariline/internal/transactions"
	"github.com/wariline/wariline/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	archivePool, err := db.New(ctx, cfg.ArchivePGDSN)
	if err != nil {
		logger.Error("connect archive postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer archivePool.Close()

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

	mailClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init task client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailClient.Close(); err != nil {
			logger.Warn("task client close", slog.Any("error", err))
		}
	}()

	accountsRepo := accounts.NewRepository(pool)
	txnsRepo := transactions.NewRepository(pool)
	archiveRepo := archive.NewRepository(archivePool)

	migrator := archive.NewMigrator(archive.MigratorConfig{
		Accounts:         accountsRepo,
		Transactions:     txnsRepo,
		ArchiveRepo:      archiveRepo,
		Purger:           archive.NewPurger(pool),
		CopyTransactions: cfg.ArchiveCopyTransactions,
		Logger:           logger,
	})

	dispatcher := notify.NewQueueDispatcher(mailClient, logger)
	runner := reconcile.NewRunner(reconcile.Config{
		Accounts:       accountsRepo,
		Archiver:       migrator,
		Audit:          shared.NewAuditLogger(pool),
		Notifier:       notify.ForAccounts(dispatcher),
		Policy:         cfg.ExpiryPolicy(),
		ArchiveOnBlock: cfg.ArchiveOnBlock,
		Parallelism:    cfg.ReconcileParallelism,
		Logger:         logger,
	})

	runLock := shared.NewRunLock(redisClient)
	metrics := jobmetrics.NewMetrics(nil)

	reconcileJob := jobs.NewBlockReconcileJob(runner, runLock, cfg.ReconcileInterval, logger, metrics)
	restoreJob := jobs.NewArchiveRestoreJob(migrator, runLock, 10*time.Minute, logger, metrics)

	reconcileTask, err := jobs.NewBlockReconcileTask(cfg.ReconcileInterval)
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	restoreTask := jobs.NewArchiveRestoreTask()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBlockReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskArchiveRestore, Handler: restoreJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: fmt.Sprintf("@every %s", cfg.ReconcileInterval), Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "@every 1h", Task: restoreTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
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
