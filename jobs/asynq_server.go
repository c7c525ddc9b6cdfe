package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/studentdesk/studentdesk/internal/platform/httpx"
)

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration schedules Task on a cron spec.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig configures NewWorker. Concurrency defaults to 5.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// Worker runs the RBAC maintenance tasks and their schedule.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker builds the asynq server, mux and, when Cron is non-empty, the
// scheduler. Handlers without a type or function are ignored.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	w := &Worker{logger: logger, mux: asynq.NewServeMux()}
	w.server = asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:  concurrency,
		Queues:       map[string]int{QueueDefault: 1},
		Logger:       newAsynqLogger(logger),
		LogLevel:     asynq.InfoLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(w.reportFailure),
	})
	w.mux.Use(w.logTask)
	for _, h := range cfg.Handlers {
		if h.Type != "" && h.Handler != nil {
			w.mux.HandleFunc(h.Type, h.Handler)
		}
	}

	if len(cfg.Cron) == 0 {
		return w, nil
	}
	w.scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   newAsynqLogger(logger),
	})
	for _, entry := range cfg.Cron {
		if entry.Spec == "" || entry.Task == nil {
			continue
		}
		if _, err := w.scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
			return nil, fmt.Errorf("schedule %s on %q: %w", entry.Task.Type(), entry.Spec, err)
		}
	}
	return w, nil
}

// Run processes tasks until ctx is cancelled, then drains in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	w.logger.Info("worker started", slog.Bool("scheduler", w.scheduler != nil))

	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

func (w *Worker) logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, task)
		w.logger.DebugContext(ctx, "task processed",
			slog.String("task", task.Type()),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("ok", err == nil),
		)
		return err
	})
}

func (w *Worker) reportFailure(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	w.logger.WarnContext(ctx, "task failed",
		slog.String("task", task.Type()),
		slog.Int("retried", retried),
		slog.Int("max_retry", maxRetry),
		slog.Any("error", err),
	)
}

// Client enqueues RBAC maintenance tasks on demand.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq-backed Client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueRegistrySync enqueues a registry sync against the given catalog file,
// or the embedded catalog when path is empty.
func (c *Client) EnqueueRegistrySync(ctx context.Context, path string) (*asynq.TaskInfo, error) {
	task, err := NewRegistrySyncTask(path)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Unique(time.Minute))
}

// EnqueueOverridePrune enqueues an override prune.
func (c *Client) EnqueueOverridePrune(ctx context.Context) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, NewOverridePruneTask(), asynq.Unique(time.Minute))
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler serves queue health under /jobs.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs a Handler. A nil inspector reports an empty queue.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Failed  int    `json:"failed"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	report := queueHealth{Queue: QueueDefault}
	if h.inspector != nil {
		info, err := h.inspector.GetQueueInfo(QueueDefault)
		if err != nil {
			if h.logger != nil {
				h.logger.WarnContext(r.Context(), "queue info", slog.Any("error", err))
			}
			httpx.RespondError(w, httpx.ErrUnavailable)
			return
		}
		report = queueHealth{Queue: info.Queue, Pending: info.Pending, Failed: info.Failed}
	}
	httpx.JSON(w, http.StatusOK, report)
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(logger *slog.Logger) asynq.Logger {
	return asynqLogger{logger: logger.With(slog.String("component", "asynq"))}
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
