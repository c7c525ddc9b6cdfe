package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/studentdesk/studentdesk/internal/app"
	jobmetrics "github.com/studentdesk/studentdesk/internal/jobs"
	"github.com/studentdesk/studentdesk/internal/platform/db"
	"github.com/studentdesk/studentdesk/internal/rbac"
	"github.com/studentdesk/studentdesk/internal/shared"
	"github.com/studentdesk/studentdesk/internal/staff"
	"github.com/studentdesk/studentdesk/jobs"
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
	if cfg.UsesMemoryStore() {
		logger.Error("worker requires RBAC_STORE=postgres; the memory store is local to the web process")
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store := rbac.NewPGStore(pool)
	rbacService := rbac.NewService(rbac.ServiceConfig{
		Store:  store,
		Staff:  staff.NewRepository(pool),
		Audit:  shared.NewAuditLogger(pool),
		Logger: logger,
	})

	metrics := jobmetrics.NewMetrics(nil)
	syncJob := jobs.NewRegistrySyncJob(rbacService, logger, metrics)
	pruneJob := jobs.NewOverridePruneJob(rbacService, logger, metrics)

	syncTask, err := jobs.NewRegistrySyncTask("")
	if err != nil {
		logger.Error("build registry sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRegistrySync, Handler: syncJob.Handle},
			{Type: jobs.TaskOverridePrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every 6h", Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.RBACPruneCron, Task: jobs.NewOverridePruneTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
