package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/studentdesk/studentdesk/cmd/studentdesk/cli"
	"github.com/studentdesk/studentdesk/internal/app"
	"github.com/studentdesk/studentdesk/internal/auth"
	"github.com/studentdesk/studentdesk/internal/observability"
	"github.com/studentdesk/studentdesk/internal/platform/cache"
	"github.com/studentdesk/studentdesk/internal/platform/db"
	"github.com/studentdesk/studentdesk/internal/rbac"
	"github.com/studentdesk/studentdesk/internal/roles"
	"github.com/studentdesk/studentdesk/internal/shared"
	"github.com/studentdesk/studentdesk/internal/staff"
	"github.com/studentdesk/studentdesk/internal/view"
	"github.com/studentdesk/studentdesk/jobs"
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
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(redisOpts)
		err = jobsCLI.Run(ctx, os.Args[2:], os.Stdout)
		_ = jobsCLI.Close()
	} else {
		err = serve(ctx, cfg, logger, redisOpts)
	}
	if err != nil {
		logger.Error("studentdesk exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger, redisOpts asynq.RedisClientOpt) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}
	sessions := shared.NewSessionManager(redisClient, "studentdesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()
	audit := shared.NewAuditLogger(pool)
	staffRepo := staff.NewRepository(pool)

	var store rbac.Store = rbac.NewPGStore(pool)
	if cfg.UsesMemoryStore() {
		logger.Warn("permissions are served from process memory and reset on restart")
		store = rbac.NewMemoryStore()
	}
	resolver := rbac.NewResolver(rbac.ResolverConfig{
		Staff:           staffRepo,
		Registry:        store,
		Defaults:        store,
		Overrides:       store,
		AdminRoleTypeID: cfg.RBACAdminRoleTypeID,
		Logger:          logger,
		Metrics:         metrics,
	})
	rbacService := rbac.NewService(rbac.ServiceConfig{
		Store:    store,
		Staff:    staffRepo,
		Resolver: resolver,
		Audit:    audit,
		Logger:   logger,
	})
	if cfg.UsesMemoryStore() {
		if _, err := rbacService.SyncRegistry(ctx, rbac.DefaultCatalog()); err != nil {
			return fmt.Errorf("seed permission registry: %w", err)
		}
	}
	guard := rbac.NewMiddleware(resolver, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		AuthHandler:        auth.NewHandler(logger, auth.NewService(auth.NewRepository(pool)), templates, sessions, csrf),
		StaffHandler:       staff.NewHandler(logger, staff.NewService(staffRepo, resolver, audit, logger), templates, csrf, guard),
		RolesHandler:       roles.NewHandler(logger, roles.NewService(roles.NewRepository(pool), store, resolver, audit, logger), templates, csrf, guard),
		PermissionsHandler: rbac.NewHandler(logger, rbacService, resolver, templates, csrf, guard),
		RBACMiddleware:     guard,
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("rbac_store", cfg.RBACStore))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
